package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/activityreport/internal/models"
)

// --- Synopsis Model Prompts ---
const SynopsisSystemPrompt = "You are an assistant to university event coordinators. You write short, factual summaries of academic activities for official activity reports."
const SynopsisUserPrompt = `Write the "Summary of the Activity" paragraph for an activity report.

Follow these rules:
1.  Use only the facts given below. Do not invent names, numbers or outcomes.
2.  Write one paragraph of three to five sentences in a formal, past-tense register.
3.  Return ONLY the paragraph. Do not include a heading, bullet points or markdown.

Activity details:
`

// VertexClient holds the generative model used to draft report text.
type VertexClient struct {
	SynopsisModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a new client holding the synopsis model.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	synopsisModel := baseClient.GenerativeModel("gemini-1.5-pro")
	synopsisModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SynopsisSystemPrompt)},
	}
	synopsisModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: genai.Ptr[int32](400),
	}

	return &VertexClient{
		SynopsisModel: synopsisModel,
		baseClient:    baseClient,
	}, nil
}

// DraftSummary asks the model for a summary paragraph of rec. It returns an
// empty string when the model answers with no text.
func (c *VertexClient) DraftSummary(ctx context.Context, rec *models.ReportRecord) (string, error) {
	resp, err := c.SynopsisModel.GenerateContent(ctx, genai.Text(SynopsisUserPrompt+SynopsisFacts(rec)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return extractText(resp), nil
}

// SynopsisFacts lists the parts of rec the summary may be drafted from, one
// "label: value" line each.
func SynopsisFacts(rec *models.ReportRecord) string {
	var b strings.Builder
	for _, f := range rec.GeneralInfo.Compact() {
		fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
	}
	for _, sp := range rec.Speakers {
		fmt.Fprintf(&b, "Speaker: %s", sp.Name)
		if sp.PresentationTitle != "" {
			fmt.Fprintf(&b, " (%s)", sp.PresentationTitle)
		}
		b.WriteString("\n")
	}
	for _, p := range rec.Participants {
		fmt.Fprintf(&b, "Participants: %s, %s\n", p.Type, p.Count)
	}
	if s := rec.Synopsis.Highlights; s != "" {
		fmt.Fprintf(&b, "Highlights: %s\n", s)
	}
	if s := rec.Synopsis.KeyTakeaways; s != "" {
		fmt.Fprintf(&b, "Key takeaways: %s\n", s)
	}
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(text.String())
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
