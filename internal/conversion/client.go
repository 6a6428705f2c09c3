// Package conversion talks to the remote voice-conversion service and keeps
// the converted renditions of each track on disk.
package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrJobFailed is returned when the service reports a failed conversion.
var ErrJobFailed = errors.New("conversion job failed")

// Client communicates with the voice-conversion REST API.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a voice-conversion API client.
func NewClient(apiURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: logger.With().Str("component", "conversion").Logger(),
	}
}

// VoiceModel is one model offered by the service.
type VoiceModel struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type voiceModelsResp struct {
	Data []VoiceModel `json:"data"`
}

// Request holds the conversion parameters sent with the upload.
type Request struct {
	VoiceModelID       int
	ConversionStrength float64
	ModelVolumeMix     float64
	PitchShift         int
}

type startResp struct {
	ID int `json:"id"`
}

type jobResp struct {
	ID            int    `json:"id"`
	Status        string `json:"status"`
	OutputFileURL string `json:"outputFileUrl"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListVoiceModels returns one page of instrument models.
func (c *Client) ListVoiceModels(ctx context.Context, page int) ([]VoiceModel, error) {
	q := url.Values{}
	q.Set("instruments", "true")
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", "20")

	req, err := c.newRequest(ctx, http.MethodGet, "/voice-models?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var result voiceModelsResp
	if err := c.doJSON(req, &result); err != nil {
		return nil, fmt.Errorf("list voice models: %w", err)
	}
	return result.Data, nil
}

// StartConversion uploads file and returns the job id.
func (c *Client) StartConversion(ctx context.Context, file string, r Request) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"voiceModelId":       strconv.Itoa(r.VoiceModelID),
		"conversionStrength": strconv.FormatFloat(r.ConversionStrength, 'f', -1, 64),
		"modelVolumeMix":     strconv.FormatFloat(r.ModelVolumeMix, 'f', -1, 64),
		"pitchShift":         strconv.Itoa(r.PitchShift),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return 0, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("soundFile", filepath.Base(file))
	if err != nil {
		return 0, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/voice-conversions", &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result startResp
	if err := c.doJSON(req, &result); err != nil {
		return 0, fmt.Errorf("submit conversion: %w", err)
	}
	if result.ID == 0 {
		return 0, fmt.Errorf("submit conversion: missing id in response")
	}
	return result.ID, nil
}

// PollUntilDone polls a job until it has an output file and returns its URL.
func (c *Client) PollUntilDone(ctx context.Context, jobID int, interval time.Duration) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := c.newRequest(ctx, http.MethodGet, "/voice-conversions/"+strconv.Itoa(jobID), nil)
		if err != nil {
			return "", err
		}

		var job jobResp
		err = c.doJSON(req, &job)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			c.logger.Warn().Err(err).Int("job", jobID).Msg("poll error, retrying")
		case job.OutputFileURL != "":
			return job.OutputFileURL, nil
		case job.Status == "error" || job.Status == "failed":
			return "", fmt.Errorf("job %d: %w", jobID, ErrJobFailed)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download fetches rawURL into dest, replacing any existing file.
func (c *Client) Download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download audio: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create converted dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.wav")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("move audio into place: %w", err)
	}
	return nil
}
