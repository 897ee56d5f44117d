package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/listings"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/media"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/plans"
	"github.com/shopspring/decimal"
)

// listingError maps listing and media errors to a response.
func (h *Handlers) listingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, listings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
	case errors.Is(err, listings.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only manage your own listings"})
	case errors.Is(err, listings.ErrNotAgent):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only agents can manage listings"})
	case errors.Is(err, plans.ErrNoActivePackage):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "An active service package is required"})
	case errors.Is(err, listings.ErrListingLimit):
		c.JSON(http.StatusForbidden, gin.H{"error": "Listing limit of your current plan reached"})
	case errors.Is(err, listings.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": "You have already reviewed this property"})
	case errors.Is(err, listings.ErrInvalidListing),
		errors.Is(err, listings.ErrInvalidRating),
		errors.Is(err, listings.ErrInvalidInquiry):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	default:
		h.internalError(c, "Listing request failed", err)
	}
}

// parseFilter reads the search query string. Malformed numbers are
// reported rather than ignored.
func parseFilter(c *gin.Context) (listings.Filter, error) {
	f := listings.Filter{
		Query: c.Query("q"),
		City:  c.Query("city"),
	}
	var err error
	intParam := func(name string, dst *int) {
		if v := c.Query(name); v != "" && err == nil {
			*dst, err = strconv.Atoi(v)
		}
	}
	decimalParam := func(name string) *decimal.Decimal {
		v := c.Query(name)
		if v == "" || err != nil {
			return nil
		}
		d, perr := decimal.NewFromString(v)
		if perr != nil {
			err = perr
			return nil
		}
		return &d
	}

	intParam("page", &f.Page)
	intParam("pageSize", &f.PageSize)
	intParam("minBedrooms", &f.MinBedrooms)
	f.MinPrice = decimalParam("minPrice")
	f.MaxPrice = decimalParam("maxPrice")

	if near := c.Query("near"); near != "" && err == nil {
		parts := strings.Split(near, ",")
		if len(parts) != 2 {
			return f, errors.New("near must be lat,lng")
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if latErr != nil || lngErr != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return f, errors.New("near must be lat,lng")
		}
		f.Near = &listings.Point{Lat: lat, Lng: lng}
		if p := c.Query("precision"); p != "" {
			precision, perr := strconv.ParseUint(p, 10, 8)
			if perr != nil {
				return f, perr
			}
			f.Precision = uint(precision)
		}
	}
	return f, err
}

// SearchProperties handles GET /api/properties.
func (h *Handlers) SearchProperties(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search parameters: " + err.Error()})
		return
	}

	page, err := h.Listings.Search(c.Request.Context(), f)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetProperty handles GET /api/listings/:slug.
func (h *Handlers) GetProperty(c *gin.Context) {
	p, err := h.Listings.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"property": p})
}

// CreateProperty handles POST /api/properties.
func (h *Handlers) CreateProperty(c *gin.Context) {
	s, _ := currentUser(c)

	var input listings.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.Listings.Create(c.Request.Context(), s.UserID, input)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Property created successfully",
		"property": p,
	})
}

// DeleteProperty handles DELETE /api/properties/:id.
func (h *Handlers) DeleteProperty(c *gin.Context) {
	s, _ := currentUser(c)
	propertyID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.Listings.Delete(c.Request.Context(), s.UserID, propertyID); err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Property deleted successfully"})
}

// GetMyProperties handles GET /api/agent/properties.
func (h *Handlers) GetMyProperties(c *gin.Context) {
	s, _ := currentUser(c)

	list, err := h.Listings.ListForAgent(c.Request.Context(), s.UserID)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": list})
}

// ToggleFavorite handles POST /api/properties/:id/favorite.
func (h *Handlers) ToggleFavorite(c *gin.Context) {
	s, _ := currentUser(c)
	propertyID, ok := idParam(c, "id")
	if !ok {
		return
	}

	favorited, err := h.Listings.ToggleFavorite(c.Request.Context(), s.UserID, propertyID)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": favorited})
}

// GetMyFavorites handles GET /api/me/favorites.
func (h *Handlers) GetMyFavorites(c *gin.Context) {
	s, _ := currentUser(c)

	list, err := h.Listings.ListFavorites(c.Request.Context(), s.UserID)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": list})
}

type InquiryInput struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required"`
	Phone   string `json:"phone"`
	Message string `json:"message" binding:"required"`
}

// CreateInquiry handles POST /api/properties/:id/inquiries. Visitors do not
// need an account.
func (h *Handlers) CreateInquiry(c *gin.Context) {
	propertyID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input InquiryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inq := &models.Inquiry{
		PropertyID: propertyID,
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Message:    input.Message,
	}
	if s, ok := currentUser(c); ok {
		inq.UserID = &s.UserID
	}

	if err := h.Listings.AddInquiry(c.Request.Context(), inq); err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Inquiry sent", "inquiry": inq})
}

type ReviewInput struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// CreateReview handles POST /api/properties/:id/reviews.
func (h *Handlers) CreateReview(c *gin.Context) {
	s, _ := currentUser(c)
	propertyID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var input ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r := &models.Review{PropertyID: propertyID, UserID: s.UserID, Rating: input.Rating, Comment: input.Comment}
	if err := h.Listings.AddReview(c.Request.Context(), r); err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"review": r})
}

// GetReviews handles GET /api/properties/:id/reviews.
func (h *Handlers) GetReviews(c *gin.Context) {
	propertyID, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.Listings.ListReviews(c.Request.Context(), propertyID)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list})
}
