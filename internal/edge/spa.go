package edge

import (
	"path/filepath"

	"github.com/gofiber/fiber/v2"
)

// RegisterSPA serves the built client from dir and answers every other GET/HEAD with
// its entry document. Register it after all other routes.
func RegisterSPA(app *fiber.App, dir string) {
	index := filepath.Join(dir, "index.html")

	app.Static("/", dir, fiber.Static{
		Index: "index.html",
	})
	app.Get("/*", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-cache")
		return c.SendFile(index)
	})
}
