package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/projector"
)

type fakeResponder struct {
	prompt string
	answer string
	err    error
}

func (f *fakeResponder) Respond(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

func testSummary() *models.Summary {
	temp := 28.31
	return &models.Summary{
		Region:          "Arabian Sea",
		NumProfiles:     120,
		NumFloats:       14,
		DateRange:       models.DateRange{Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 8, 30, 0, 0, 0, 0, time.UTC)},
		AvgSurfaceTempC: &temp,
		DeepestPointM:   1995,
	}
}

func TestBuildPrompt(t *testing.T) {
	metrics := map[models.Parameter]projector.ModelMetrics{
		models.Temperature: {R2: 0.912, ModelType: "linear_ols"},
	}
	prompt := BuildPrompt(testSummary(), metrics, "Where is the water warmest?")

	for _, want := range []string{
		"You are OceanGPT",
		"- Region: Arabian Sea",
		"- Num Profiles: 120",
		"- Date Range: 2024-06-01 to 2024-08-30",
		"- Avg Surface Temp C: 28.31",
		"- Avg Surface Salinity PSU: N/A",
		"- Temperature Model: linear_ols (R² = 0.912)",
		"User Question: Where is the water warmest?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "Your Answer:") {
		t.Error("Prompt should end with the answer cue")
	}
}

func TestBuildPrompt_NoContext(t *testing.T) {
	prompt := BuildPrompt(nil, nil, "hi")
	if !strings.Contains(prompt, "No specific ocean data context") {
		t.Errorf("Expected no-context line, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "Available Predictive Models") {
		t.Error("Expected no model section without metrics")
	}
}

func TestAsk(t *testing.T) {
	r := &fakeResponder{answer: "  - Warmest near the surface.  "}
	a := NewAssistant(r)

	got, err := a.Ask(context.Background(), testSummary(), nil, "Where?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if got != "- Warmest near the surface." {
		t.Errorf("Unexpected answer: %q", got)
	}
	if !strings.Contains(r.prompt, "User Question: Where?") {
		t.Error("Responder did not receive the built prompt")
	}
}

func TestAsk_FriendlyErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("googleapi: Error 400: API_KEY_INVALID"), credentialReply},
		{errors.New("googleapi: Error 429: Quota exceeded"), quotaReply},
		{errors.New("connection reset"), genericReply},
	}
	for _, tt := range tests {
		a := NewAssistant(&fakeResponder{err: tt.err})
		got, err := a.Ask(context.Background(), nil, nil, "q")
		if err != nil {
			t.Errorf("Expected friendly reply, got error %v", err)
		}
		if got != tt.want {
			t.Errorf("For %v: got %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAsk_Unavailable(t *testing.T) {
	_, err := NewAssistant(nil).Ask(context.Background(), nil, nil, "q")
	if models.KindOf(err) != models.KindChatUnavailable {
		t.Errorf("Expected chat_unavailable, got %v", err)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	_, err := NewAssistant(&fakeResponder{answer: "x"}).Ask(context.Background(), nil, nil, "  ")
	if models.KindOf(err) != models.KindInvalidRequest {
		t.Errorf("Expected invalid_request, got %v", err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", ""); err == nil {
		t.Error("Expected error without api key")
	}
}
