// Package extractor pulls a date and time out of free-form user text with a
// hosted chat model.
package extractor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ErrNotFound means the model could not find a date and time in the text.
var ErrNotFound = errors.New("date/time not found")

// Result is the raw date and time as returned by the model.
type Result struct {
	Date string
	Time string
}

type Config struct {
	AuthURL            string
	APIURL             string
	AuthKey            string
	Scope              string
	Model              string
	InsecureSkipVerify bool
	Timeout            time.Duration
	Location           *time.Location
	// Now is injectable for tests.
	Now func() time.Time
}

// Client calls a GigaChat-compatible chat completions endpoint.
type Client struct {
	http   *http.Client
	cfg    Config
	logger zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Client {
	if cfg.Scope == "" {
		cfg.Scope = "GIGACHAT_API_PERS"
	}
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // provider ships a private CA
	}

	ts := oauth2.ReuseTokenSource(nil, &tokenSource{
		client:  &http.Client{Transport: base, Timeout: cfg.Timeout},
		authURL: cfg.AuthURL,
		authKey: cfg.AuthKey,
		scope:   cfg.Scope,
		timeout: cfg.Timeout,
	})

	return &Client{
		http: &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base},
			Timeout:   cfg.Timeout,
		},
		cfg:    cfg,
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ExtractDateTime asks the model for a date and time found in text.
func (c *Client) ExtractDateTime(ctx context.Context, text string) (Result, error) {
	now := c.cfg.Now().In(c.cfg.Location)
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Ты – ассистент, извлекающий дату и время из текста."},
			{Role: "user", Content: prompt(text, now)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completion: empty choices")
	}

	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	zerolog.Ctx(ctx).Debug().Str("content", content).Msg("Extractor response")
	return ParseAnswer(content)
}

func prompt(text string, now time.Time) string {
	return "Текст пользователя: «" + text + "»\n\n" +
		"Сегодня " + now.Format("02.01.2006") + ". " +
		"Требуется выделить предполагаемую дату и время. " +
		"Если в дате не указан год, то ставь по умолчанию " + strconv.Itoa(now.Year()) + ". " +
		"Формат ответа: DATE: <дд.мм.гггг> TIME: <чч:мм>, " +
		"или NOT_FOUND, если не удалось определить."
}

var (
	dateRe = regexp.MustCompile(`(?i)DATE:\s*(\S+)`)
	timeRe = regexp.MustCompile(`(?i)TIME:\s*(\S+)`)
)

// ParseAnswer reads "DATE: <d> TIME: <t>" from a model reply.
func ParseAnswer(content string) (Result, error) {
	if strings.Contains(strings.ToUpper(content), "NOT_FOUND") {
		return Result{}, ErrNotFound
	}

	dm := dateRe.FindStringSubmatch(content)
	tm := timeRe.FindStringSubmatch(content)
	if dm == nil || tm == nil {
		return Result{}, ErrNotFound
	}
	return Result{
		Date: strings.Trim(dm[1], ",.;"),
		Time: strings.Trim(tm[1], ",.;"),
	}, nil
}
