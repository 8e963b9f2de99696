package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// AzureContentSafety calls Azure Content Safety's text/image analysis
// endpoints, grounded on moderation/providers/tags/azure.rs's
// ContentSafety client: a static subscription-key header, one endpoint
// per media type, and a flat categoriesAnalysis response. It
// authenticates with Ocp-Apim-Subscription-Key rather than an Azure SDK
// credential chain, since Content Safety's REST surface is plain
// key-authenticated and has no ARM resource for azcore/azidentity to
// resolve.
type AzureContentSafety struct {
	Endpoint   string
	Key        string
	APIVersion string
	HTTPClient *http.Client
	// Threshold is the minimum severity (0..7 on Azure's scale) for a
	// category to produce a Tag.
	Threshold int
}

// NewAzureContentSafety builds a client against endpoint/key. A nil
// client defaults to a 10-second-timeout http.Client.
func NewAzureContentSafety(endpoint, key string, client *http.Client) *AzureContentSafety {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &AzureContentSafety{Endpoint: endpoint, Key: key, APIVersion: "2023-10-01", HTTPClient: client, Threshold: 2}
}

type azureDetectionRequest struct {
	Text  string      `json:"text,omitempty"`
	Image *azureImage `json:"image,omitempty"`
}

type azureImage struct {
	Content string `json:"content"`
}

func (a *AzureContentSafety) detect(ctx context.Context, mediaType string, text []byte, image []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/contentsafety/%s:analyze?api-version=%s", a.Endpoint, mediaType, a.APIVersion)

	req := azureDetectionRequest{}
	if len(text) > 0 {
		req.Text = string(text)
	}
	if len(image) > 0 {
		req.Image = &azureImage{Content: base64.StdEncoding.EncodeToString(image)}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal azure request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build azure request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.Key)

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("azure request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read azure response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("azure moderation error: status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}

// Classify implements TagClassifier: text-only, image-only, or
// text+image analysis depending on which fields ev carries, mirroring
// AzureTagProvider::moderate's (content, blob) media-type dispatch.
func (a *AzureContentSafety) Classify(ctx context.Context, ev PendingEvent) ([]Tag, error) {
	var mediaType string
	switch {
	case len(ev.Content) > 0 && len(ev.Image) > 0:
		mediaType = "imageWithText"
	case len(ev.Content) > 0:
		mediaType = "text"
	case len(ev.Image) > 0:
		mediaType = "image"
	default:
		return nil, nil
	}

	body, err := a.detect(ctx, mediaType, ev.Content, ev.Image)
	if err != nil {
		return nil, err
	}

	var tags []Tag
	for _, entry := range gjson.GetBytes(body, "categoriesAnalysis").Array() {
		severity := int(entry.Get("severity").Int())
		if severity >= a.Threshold {
			tags = append(tags, Tag{Name: entry.Get("category").String(), Level: int16(severity)})
		}
	}
	return tags, nil
}

// AzureCSAMClassifier implements CSAMClassifier against a Content
// Safety deployment scoped to CSAM detection; a high-severity "Sexual"
// category hit on the assembled image is treated as a CSAM match.
// Kept as its own endpoint/key rather than reusing AzureContentSafety's
// tag deployment, since operators typically route CSAM detection to a
// separate, more tightly access-controlled resource.
type AzureCSAMClassifier struct {
	*AzureContentSafety
}

// NewAzureCSAMClassifier builds a CSAM classifier against its own
// endpoint/key.
func NewAzureCSAMClassifier(endpoint, key string, client *http.Client) *AzureCSAMClassifier {
	c := NewAzureContentSafety(endpoint, key, client)
	c.Threshold = 6
	return &AzureCSAMClassifier{AzureContentSafety: c}
}

func (a *AzureCSAMClassifier) ClassifyImage(ctx context.Context, ev PendingEvent) (bool, error) {
	if len(ev.Image) == 0 {
		return false, nil
	}
	body, err := a.detect(ctx, "image", nil, ev.Image)
	if err != nil {
		return false, err
	}
	for _, entry := range gjson.GetBytes(body, "categoriesAnalysis").Array() {
		if entry.Get("category").String() != "Sexual" {
			continue
		}
		if int(entry.Get("severity").Int()) >= a.Threshold {
			return true, nil
		}
	}
	return false, nil
}
