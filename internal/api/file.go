package api

import (
	"net/http"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/services/imagestore"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// GetFile serves a stored image by its locator. Local storage hands the
// file to gin directly; object storage round-trips the bytes.
func GetFile(c *gin.Context) {
	filename := c.Param("filename")
	app := c.MustGet("app").(*app.App)

	store := app.ImageStore()
	if local, ok := store.(*imagestore.LocalFileStorage); ok {
		path, err := local.ResolvePath(filename)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
			return
		}

		c.File(path)
		return
	}

	file, err := store.GetFile(c.Request.Context(), filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
		return
	}

	mimeType := mimetype.Detect(file.Content).String()
	c.Data(http.StatusOK, mimeType, file.Content)
}
