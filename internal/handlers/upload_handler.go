package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/media"
)

// UploadPropertyPhoto handles POST /api/properties/:id/photos (multipart,
// field "file"). The file is stored through media.Storage and a thumbnail
// is generated alongside it.
func (h *Handlers) UploadPropertyPhoto(c *gin.Context) {
	s, _ := currentUser(c)
	propertyID, ok := idParam(c, "id")
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if file.Size > media.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": media.ErrTooLarge.Error()})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, media.MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	photo, err := h.Listings.AddPhoto(c.Request.Context(), s.UserID, propertyID, file.Filename, contentType, data)
	if err != nil {
		h.listingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"photo": photo})
}
