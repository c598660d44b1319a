// assiststub is a local stand-in for the remote analysis service so the
// client can be exercised offline. It keeps the wire contract (/process-image
// and /ask returning {"response"}) and nothing else.
package main

import (
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type processImageRequest struct {
	Image    string `json:"image"`
	Language string `json:"language"`
}

type askRequest struct {
	Question string `json:"question"`
}

type assistResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type stub struct {
	mu      sync.Mutex
	started bool
}

func main() {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &stub{}
	e.POST("/process-image", s.processImage)
	e.POST("/ask", s.ask)

	addr := os.Getenv("STUB_ADDRESS")
	if addr == "" {
		addr = ":5001"
	}
	e.Logger.Fatal(e.Start(addr))
}

func (s *stub) processImage(c echo.Context) error {
	var req processImageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad request"})
	}
	if !strings.HasPrefix(req.Image, "data:image/") || !strings.Contains(req.Image, ",") {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid image data URL"})
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	resp := "The image shows a wheat field with yellowing lower leaves, which can indicate nitrogen deficiency or early rust. Soil looks dry. Ask me about treatment, irrigation, or pests."
	if req.Language == "hi" {
		resp = "छवि में गेहूं का खेत दिख रहा है जिसकी निचली पत्तियां पीली हैं। यह नाइट्रोजन की कमी या रस्ट का संकेत हो सकता है। उपचार, सिंचाई या कीटों के बारे में पूछें।"
	}
	return c.JSON(http.StatusOK, assistResponse{Response: resp})
}

func (s *stub) ask(c echo.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Session not started"})
	}

	var req askRequest
	if err := c.Bind(&req); err != nil || req.Question == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "No question provided"})
	}

	q := strings.ToLower(req.Question)
	resp := "Based on the image, keep monitoring the crop and retest soil in two weeks."
	switch {
	case strings.Contains(q, "water") || strings.Contains(q, "irrigat"):
		resp = "Irrigate lightly in the early morning; the soil in your image looks dry but not cracked."
	case strings.Contains(q, "pest") || strings.Contains(q, "insect"):
		resp = "No visible pest damage in the image, but check leaf undersides for aphids weekly."
	case strings.Contains(q, "fertil") || strings.Contains(q, "nitrogen"):
		resp = "Apply a split dose of urea and verify with a soil test before the next irrigation."
	}
	return c.JSON(http.StatusOK, assistResponse{Response: resp})
}
