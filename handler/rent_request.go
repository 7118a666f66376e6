package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"rentease/model"
	"rentease/rental"
)

// PayResponse is the body of a successful POST /rent-requests/:id/pay.
type PayResponse struct {
	Detail       string    `json:"detail"`
	ClientSecret string    `json:"client_secret"`
	BookedUntil  time.Time `json:"booked_until"`
}

// rentalHTTPError turns a rental.Service error into the response the client sees.
func rentalHTTPError(c echo.Context, err error) error {
	var re *rental.Error
	if !errors.As(err, &re) {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Something went wrong. Please try again later."}
	}

	switch {
	case errors.Is(re, rental.ErrValidation):
		msg := map[string]string{"message": re.Message}
		if re.Field != "" {
			msg["field"] = re.Field
		}
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: msg}
	case errors.Is(re, rental.ErrForbidden):
		return &echo.HTTPError{Code: http.StatusForbidden, Message: re.Message}
	case errors.Is(re, rental.ErrNotFound):
		return &echo.HTTPError{Code: http.StatusNotFound, Message: re.Message}
	case errors.Is(re, rental.ErrUpstream):
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: re.Message}
	case errors.Is(re, rental.ErrPaymentUnknown):
		return &echo.HTTPError{Code: http.StatusBadGateway, Message: re.Message}
	}

	c.Logger().Error(err)
	return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Something went wrong. Please try again later."}
}

func (h *Handler) FetchRentRequests(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	requests, err := h.Rentals.List(c.Request().Context(), actor)
	if err != nil {
		return rentalHTTPError(c, err)
	}

	res := []model.PublicRentRequest{}
	for _, r := range requests {
		res = append(res, r.ToPublicFormat())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) FetchRentRequest(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	req, err := h.Rentals.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return rentalHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, req.ToPublicFormat())
}

func (h *Handler) CreateRentRequest(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	f := model.SubmitRentRequest{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	req, err := h.Rentals.Create(c.Request().Context(), actor, f)
	if err != nil {
		return rentalHTTPError(c, err)
	}

	return c.JSON(http.StatusCreated, req.ToPublicFormat())
}

func (h *Handler) AcceptRentRequest(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	if _, err := h.Rentals.Accept(c.Request().Context(), actor, c.Param("id")); err != nil {
		return rentalHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, DetailResponse{Detail: "Rent request accepted."})
}

func (h *Handler) RejectRentRequest(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	if _, err := h.Rentals.Reject(c.Request().Context(), actor, c.Param("id")); err != nil {
		return rentalHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, DetailResponse{Detail: "Rent request rejected."})
}

func (h *Handler) PayRentRequest(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	result, err := h.Rentals.Pay(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return rentalHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, PayResponse{
		Detail:       fmt.Sprintf("Payment successful. House booked until %s.", result.BookedUntil.Format("2006-01-02")),
		ClientSecret: result.ClientSecret,
		BookedUntil:  result.BookedUntil,
	})
}
