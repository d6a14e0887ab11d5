package api

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// Uploads (avatars, credential documents) are capped at 10 MB
const bodyLimit = 10 * 1024 * 1024

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

func NewAPIServer(listenAddress string) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "UniLink API",
			BodyLimit:    bodyLimit,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			ErrorHandler: errorHandler,
		}),
		listenAddress: listenAddress,
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	log.Println("Starting API Server")
	log.Printf("Listening on %s", s.listenAddress)

	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders errors that escape handlers, such as unknown routes or
// oversized bodies, in the standard error envelope
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	switch code {
	case fiber.StatusNotFound:
		return response.NotFound(c, "Route not found")
	case fiber.StatusMethodNotAllowed:
		return response.Error(c, code, "Method not allowed", "METHOD_NOT_ALLOWED")
	case fiber.StatusRequestEntityTooLarge:
		return response.Error(c, code, "Request body too large", "PAYLOAD_TOO_LARGE")
	case fiber.StatusInternalServerError:
		log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return response.InternalServerError(c, "Internal server error")
	}
	return response.Error(c, code, fe.Message, "REQUEST_ERROR")
}
