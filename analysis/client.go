// Package analysis wraps the hosted food-analysis and meal-plan-generation
// endpoints. Responses are treated opaquely: only the fields the app needs
// are decoded.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	base := os.Getenv("ANALYSIS_BASE_URL")
	if base == "" {
		base = "http://localhost:9090"
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FoodResult is the subset of the analysis response the app reads.
type FoodResult struct {
	Name     string  `json:"name"`
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// AnalyzeFood posts a description or image reference and returns the
// estimated nutrition.
func (c *Client) AnalyzeFood(ctx context.Context, payload map[string]interface{}) (FoodResult, error) {
	var result FoodResult
	if err := c.post(ctx, "/v1/analyze", payload, &result); err != nil {
		return result, err
	}
	return result, nil
}

// PlannedMeal is one suggested meal from the generation endpoint.
type PlannedMeal struct {
	Name     string `json:"name"`
	MealType string `json:"meal_type"`
	Calories int    `json:"calories"`
}

// GenerateMealPlan posts user preferences and returns suggested meals.
func (c *Client) GenerateMealPlan(ctx context.Context, prefs map[string]interface{}) ([]PlannedMeal, error) {
	var out struct {
		Meals []PlannedMeal `json:"meals"`
	}
	if err := c.post(ctx, "/v1/mealplan", prefs, &out); err != nil {
		return nil, err
	}
	return out.Meals, nil
}

func (c *Client) post(ctx context.Context, path string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("analysis endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
