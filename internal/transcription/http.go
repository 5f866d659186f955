package transcription

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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/types"
)

type PublishSuccessResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string   `json:"MediaId"`
		Status           string   `json:"Status"`
		LanguageId       int      `json:"LanguageId"`
		TranscriptionURL string   `json:"TranscriptionURL"`
		WordsCount       int      `json:"WordsCount"`
		Confidence       *float64 `json:"Confidence"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		LanguageId           int      `json:"LanguageId"`
		Language             string   `json:"Language"`
		Status               string   `json:"Status"`
		TranscriptionTextURL string   `json:"TranscriptionTextURL"`
		WordsCount           int      `json:"WordsCount"`
		Confidence           *float64 `json:"Confidence"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

// HTTPAdapter talks to a remote transcription service: publish the file,
// poll until it is done, download the text. The whole exchange is bounded by
// the stage timeout.
type HTTPAdapter struct {
	host         string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
	timeout      time.Duration
	log          *logrus.Entry
}

func NewHTTPAdapter(host string, pollInterval time.Duration, maxPolls int, timeout time.Duration, log *logrus.Entry) *HTTPAdapter {
	return &HTTPAdapter{
		host:         strings.TrimRight(host, "/"),
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		timeout:      timeout,
		log:          log.WithField("component", "transcription"),
	}
}

func (a *HTTPAdapter) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.transcribe(ctx, audioPath)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, types.NewStageError(types.StageTranscription, "transcription timed out", err)
		}
		return Result{}, types.AsStageError(types.StageTranscription, err)
	}
	return res, nil
}

func (a *HTTPAdapter) transcribe(ctx context.Context, audioPath string) (Result, error) {
	mediaID, existingURL, confidence, err := a.publish(ctx, audioPath)
	if err != nil {
		return Result{}, err
	}
	textURL, language := existingURL, ""
	if textURL == "" {
		var st StatusResponse
		st, err = a.poll(ctx, mediaID)
		if err != nil {
			return Result{}, err
		}
		textURL, language, confidence = st.Data.TranscriptionTextURL, st.Data.Language, st.Data.Confidence
	}
	a.log.WithField("media_id", mediaID).Info("download final transcript")
	text, err := a.download(ctx, textURL)
	if err != nil {
		return Result{}, err
	}
	text = cleanText(text)
	if text == "" {
		return Result{}, types.NewStageError(types.StageTranscription, "empty transcript", nil)
	}
	return Result{Text: text, Confidence: clampConfidence(confidence), Language: language}, nil
}

func (a *HTTPAdapter) publish(ctx context.Context, audioPath string) (string, string, *float64, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", "", nil, types.NewStageError(types.StageTranscription, "unsupported audio", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", "", nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", "", nil, fmt.Errorf("read audio: %w", err)
	}
	_ = w.WriteField("callType", "MEETING")
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/transcribe", &b)
	if err != nil {
		return "", "", nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var resp PublishSuccessResponse
	if err := a.doJSON(req, &resp); err != nil {
		return "", "", nil, err
	}
	if resp.Code != 200 {
		return "", "", nil, types.NewStageError(types.StageTranscription, "unsupported audio",
			fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason))
	}
	if resp.Data.TranscriptionURL != "" && strings.ToLower(resp.Data.Status) == "success" {
		return resp.Data.MediaId, resp.Data.TranscriptionURL, resp.Data.Confidence, nil
	}
	return resp.Data.MediaId, "", nil, nil
}

func (a *HTTPAdapter) poll(ctx context.Context, mediaID string) (StatusResponse, error) {
	base := a.host + "/getstatus"
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for i := 0; i < a.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return StatusResponse{}, ctx.Err()
		case <-ticker.C:
		}
		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("mediaId", mediaID)
		u.RawQuery = q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return StatusResponse{}, err
		}
		var s StatusResponse
		if err := a.doJSON(req, &s); err != nil {
			a.log.WithError(err).Warn("polling failed")
			continue
		}
		a.log.WithFields(logrus.Fields{
			"media_id": mediaID,
			"status":   s.Data.Status,
		}).Debug("polling transcription")
		switch s.Data.Status {
		case "Success":
			return s, nil
		case "Queued", "Processing":
			continue
		case "Failed":
			return StatusResponse{}, types.NewStageError(types.StageTranscription, "unsupported audio",
				fmt.Errorf("transcription failed: %s", s.Reason))
		}
	}
	return StatusResponse{}, types.NewStageError(types.StageTranscription, "transcription timed out",
		fmt.Errorf("no result after %d polls", a.maxPolls))
}

func (a *HTTPAdapter) download(ctx context.Context, textURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, textURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("download failed: %s", string(b))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (a *HTTPAdapter) doJSON(req *http.Request, target interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: %s", string(body))
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("json decode error: %v body=%s", err, string(body))
	}
	return nil
}
