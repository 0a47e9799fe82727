// Package chat answers free-form questions about a region with a generative
// model, grounding each prompt in the region's summary and model metrics.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/projector"
)

// Responder completes a prompt
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

const systemPrompt = `You are OceanGPT, an expert oceanographer and AI assistant specializing in ocean data analysis. You are helping users understand ARGO float data and oceanographic phenomena.
Always answer in short bullet points and stay close to what the user asked.
Your expertise includes:
1. Ocean temperature and salinity analysis
2. Marine ecosystem dynamics
3. Fishing recommendations based on ocean conditions
4. Climate change impacts on oceans
5. Oceanographic data interpretation

Guidelines:
- Provide accurate, scientific information
- Use clear, accessible language
- Suggest relevant visualizations when appropriate
- Be helpful and educational
- If you don't know something, say so clearly

Current Data Context:`

// Friendly replies for provider failures
const (
	credentialReply = "I'm having trouble connecting to the AI service. Please check that the GEMINI_API_KEY is set for the backend."
	quotaReply      = "I've reached my API usage limit. Please try again later or check your API quota."
	genericReply    = "I encountered an error while processing your request. Please try rephrasing your question or check the backend logs for more details."
	emptyReply      = "Sorry, there was an error processing the AI response."
)

// Assistant answers questions about a region
type Assistant struct {
	responder Responder
}

// NewAssistant creates an Assistant. A nil responder makes every question fail
// with ChatUnavailableError.
func NewAssistant(r Responder) *Assistant {
	return &Assistant{responder: r}
}

// Available reports whether a responder is configured
func (a *Assistant) Available() bool {
	return a != nil && a.responder != nil
}

// Ask answers question in the context of a region. Provider failures are
// logged and answered with a friendly reply rather than returned.
func (a *Assistant) Ask(ctx context.Context, summary *models.Summary, metrics map[models.Parameter]projector.ModelMetrics, question string) (string, error) {
	if !a.Available() {
		return "", &models.ChatUnavailableError{Reason: "no API key configured"}
	}
	if strings.TrimSpace(question) == "" {
		return "", &models.ValidationError{Field: "message", Message: "must not be empty"}
	}

	answer, err := a.responder.Respond(ctx, BuildPrompt(summary, metrics, question))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		logger.Error("Chat provider error: %v", err)
		return FriendlyReply(err), nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return emptyReply, nil
	}
	return answer, nil
}

// BuildPrompt assembles the system prompt, region context and question
func BuildPrompt(summary *models.Summary, metrics map[models.Parameter]projector.ModelMetrics, question string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	if summary == nil {
		b.WriteString("\n- No specific ocean data context available for this region yet.")
	} else {
		for _, line := range summaryLines(summary) {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
	}

	if len(metrics) > 0 {
		b.WriteString("\n\nAvailable Predictive Models:")
		for _, p := range models.TargetParameters {
			m, ok := metrics[p]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "\n- %s Model: %s (R² = %.3f)", capitalize(string(p)), m.ModelType, m.R2)
		}
	}

	fmt.Fprintf(&b, "\n\nUser Question: %s\n\nYour Answer:", question)
	return b.String()
}

func summaryLines(s *models.Summary) []string {
	na := func(v *float64) string {
		if v == nil {
			return "N/A"
		}
		return fmt.Sprintf("%.2f", *v)
	}
	dateRange := "N/A"
	if !s.DateRange.Start.IsZero() {
		dateRange = s.DateRange.Start.Format("2006-01-02") + " to " + s.DateRange.End.Format("2006-01-02")
	}

	lines := []string{
		"Region: " + s.Region,
		fmt.Sprintf("Num Profiles: %d", s.NumProfiles),
		fmt.Sprintf("Num Floats: %d", s.NumFloats),
		"Date Range: " + dateRange,
		"Avg Surface Temp C: " + na(s.AvgSurfaceTempC),
		"Avg Surface Salinity PSU: " + na(s.AvgSurfaceSalinityPSU),
		fmt.Sprintf("Deepest Point M: %.0f", s.DeepestPointM),
	}
	if s.Synthetic {
		lines = append(lines, "Data Note: includes generated sample profiles")
	}
	return lines
}

// FriendlyReply maps a provider error to a reply safe to show users
func FriendlyReply(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api_key") || strings.Contains(msg, "api key") || strings.Contains(msg, "authentication") || strings.Contains(msg, "permission"):
		return credentialReply
	case strings.Contains(msg, "quota") || strings.Contains(msg, "limit") || strings.Contains(msg, "resource_exhausted"):
		return quotaReply
	default:
		return genericReply
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
