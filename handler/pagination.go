package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type page struct {
	all    bool
	number int
	size   int
}

func pageFromQuery(c echo.Context) (page, error) {
	p := page{number: 1, size: defaultPageSize}

	if raw := c.QueryParam("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err == nil && size > 0 {
			p.size = size
		}
		if p.size > maxPageSize {
			p.size = maxPageSize
		}
	}

	switch raw := c.QueryParam("page"); raw {
	case "":
	case "all":
		p.all = true
	default:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, &echo.HTTPError{Code: http.StatusNotFound, Message: "Invalid page."}
		}
		p.number = n
	}

	return p, nil
}

// pageLink points at another page of the current request, keeping every other query parameter.
func pageLink(c echo.Context, number int) *string {
	req := c.Request()
	u := url.URL{Scheme: c.Scheme(), Host: req.Host, Path: req.URL.Path}

	q := req.URL.Query()
	if number == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	u.RawQuery = q.Encode()

	link := u.String()
	return &link
}

// paginate counts and loads one page of query() into dest. query must build a
// fresh statement on every call; ordering and preloads go into load, which only
// applies to the page itself.
func paginate(c echo.Context, query func() *gorm.DB, dest interface{}, load ...func(*gorm.DB) *gorm.DB) (ListResponse, error) {
	p, err := pageFromQuery(c)
	if err != nil {
		return ListResponse{}, err
	}

	var count int64
	if err := query().Count(&count).Error; err != nil {
		return ListResponse{}, fetchFailed(c, err)
	}

	res := ListResponse{Count: count}
	if p.all {
		if err := query().Scopes(load...).Find(dest).Error; err != nil {
			return ListResponse{}, fetchFailed(c, err)
		}
		return res, nil
	}

	offset := (p.number - 1) * p.size
	if p.number > 1 && int64(offset) >= count {
		return ListResponse{}, &echo.HTTPError{Code: http.StatusNotFound, Message: "Invalid page."}
	}

	if err := query().Scopes(load...).Offset(offset).Limit(p.size).Find(dest).Error; err != nil {
		return ListResponse{}, fetchFailed(c, err)
	}

	if int64(offset+p.size) < count {
		res.Next = pageLink(c, p.number+1)
	}
	if p.number > 1 {
		res.Previous = pageLink(c, p.number-1)
	}
	return res, nil
}

func fetchFailed(c echo.Context, err error) error {
	c.Logger().Error(err)
	return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch results."}
}

func orderBy(order string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	}
}
