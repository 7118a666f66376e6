package main

import (
	"context"
	"net/http"

	"github.com/go-playground/validator"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/subosito/gotenv"
	"gorm.io/gorm"

	"rentease/db"
	"rentease/handler"
	"rentease/mail"
	"rentease/payment"
	"rentease/rental"
	"rentease/storage"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Deps are the collaborators the server talks to.
type Deps struct {
	DB      *gorm.DB
	Gateway payment.Gateway
	Mailer  mail.Mailer
	Images  storage.ImageStore
}

func NewServer(cfg Config, deps Deps) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(cfg.LogLevel)
	log.SetLevel(cfg.LogLevel)

	e.Pre(middleware.RemoveTrailingSlash())

	if cfg.RequestLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	// Saniztize
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            3600,
		ContentSecurityPolicy: "default-src 'self'",
	}))

	// Allows requests from any origin wth GET, HEAD, PUT, PATCH, POST or DELETE method.
	e.Use(middleware.CORS())

	// Authenticate
	e.Use(echojwt.WithConfig(getJwtMVConfig([]byte(cfg.JWTSecret))))

	// Authorize
	authEnforcer, err := newEnforcer()
	if err != nil {
		return nil, err
	}
	e.Use(AuthorizationMW{Enforcer: authEnforcer}.Authorize)

	e.Validator = &CustomValidator{validator: validator.New()}
	h := &handler.Handler{
		DB:      deps.DB,
		Rentals: rental.NewService(deps.DB, deps.Gateway, cfg.PaymentCurrency, cfg.PaymentTimeout),
		Mailer:  deps.Mailer,
		Images:  deps.Images,
		Auth: handler.AuthConfig{
			JWTSecret:                []byte(cfg.JWTSecret),
			BaseURL:                  cfg.Domain,
			AdminEmail:               cfg.AdminEmail,
			RequireEmailVerification: cfg.RequireEmailVerification,
		},
	}

	// Routes
	e.POST("/signup", h.Signup)
	e.POST("/login", h.Login)
	e.GET("/verify-email", h.VerifyEmail)

	e.GET("/account/me", h.Me)
	e.PATCH("/account/me", h.UpdateMe)
	e.POST("/account/password", h.ChangePassword)

	e.GET("/users", h.FetchUsers)
	e.GET("/users/:id", h.FetchUser)
	e.DELETE("/users/:id", h.DeleteUser)
	e.PATCH("/users/:id/role", h.SetUserRole)

	e.GET("/categories", h.FetchCategories)
	e.POST("/categories", h.CreateCategory)
	e.GET("/categories/:id", h.FetchCategory)
	e.PATCH("/categories/:id", h.UpdateCategory)
	e.DELETE("/categories/:id", h.DeleteCategory)

	e.GET("/houses", h.FetchHouses)
	e.POST("/houses", h.CreateHouse)
	e.GET("/houses/:id", h.FetchHouse)
	e.PATCH("/houses/:id", h.UpdateHouse)
	e.DELETE("/houses/:id", h.DeleteHouse)
	e.POST("/houses/:id/submit-for-approval", h.SubmitHouseForApproval)
	e.POST("/houses/:id/approve", h.ApproveHouse)
	e.POST("/houses/:id/reject", h.RejectHouse)
	e.GET("/houses/:id/reviews", h.FetchHouseReviews)
	e.POST("/houses/:id/reviews", h.AddHouseReview)
	e.POST("/houses/:id/images", h.UploadHouseImages)

	e.GET("/reviews", h.FetchReviews)
	e.POST("/reviews", h.CreateReview)
	e.GET("/reviews/:id", h.FetchReview)
	e.PATCH("/reviews/:id", h.UpdateReview)
	e.DELETE("/reviews/:id", h.DeleteReview)

	e.GET("/favorites", h.FetchFavorites)
	e.POST("/favorites", h.CreateFavorite)
	e.DELETE("/favorites/:id", h.DeleteFavorite)
	e.POST("/favorites/:id/add", h.AddFavorite)
	e.DELETE("/favorites/:id/remove", h.RemoveFavorite)

	e.GET("/rent-requests", h.FetchRentRequests)
	e.POST("/rent-requests", h.CreateRentRequest)
	e.GET("/rent-requests/:id", h.FetchRentRequest)
	e.POST("/rent-requests/:id/accept", h.AcceptRentRequest)
	e.POST("/rent-requests/:id/reject", h.RejectRentRequest)
	e.POST("/rent-requests/:id/pay", h.PayRentRequest)

	return e, nil
}

func main() {
	gotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.LogLevel)

	// Database connection and migration
	conn, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatal(err)
	}

	var gateway payment.Gateway = payment.Disabled{}
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripe(cfg.StripeSecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, payments are disabled")
	}

	var images storage.ImageStore = storage.Disabled{}
	if cfg.AWSBucketName != "" {
		s3Store, err := storage.NewS3(context.Background(), cfg.AWSRegion, cfg.AWSBucketName)
		if err != nil {
			log.Fatal(err)
		}
		images = s3Store
	} else {
		log.Warn("AWS_BUCKET_NAME not set, image upload is disabled")
	}

	e, err := NewServer(cfg, Deps{
		DB:      conn,
		Gateway: gateway,
		Mailer:  mail.New(cfg.SMTP),
		Images:  images,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
