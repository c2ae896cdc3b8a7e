// Package diary implements the DiaryClient port against the school-diary
// service REST API.
package diary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
	"github.com/ericfisherdev/diarymirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DiaryClient = (*Client)(nil)

// Config holds the connection settings for the diary service.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // per HTTP request
	RetryAttempts uint          // retries after the first attempt
	RetryDelay    time.Duration // initial backoff delay; zero uses 200ms
}

// Client implements driven.DiaryClient with resty. Transient failures
// (transport errors, 429, 5xx) are retried with exponential backoff; every
// other failure is returned immediately.
type Client struct {
	http      *resty.Client
	cfg       Config
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewClient creates a diary service client for cfg.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:      client,
		cfg:       cfg,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.Named("diary"),
		now:       time.Now,
	}
}

// Login exchanges a username and password for a credential or a pending challenge.
func (c *Client) Login(ctx context.Context, username, password string) (driven.LoginResult, error) {
	var body authResponse
	req := func() *resty.Request {
		return c.http.R().SetBody(loginRequest{Login: username, Password: password})
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &body); err != nil {
		return driven.LoginResult{}, err
	}

	switch {
	case body.Token != nil:
		cred, err := c.credentialFrom(body.Token)
		if err != nil {
			return driven.LoginResult{}, err
		}
		return driven.LoginResult{Credential: &cred}, nil
	case body.Challenge != nil && body.Challenge.ID != "":
		ch := model.Challenge{ID: body.Challenge.ID, Username: username}
		if body.Challenge.ExpiresIn > 0 {
			ch.ExpiresAt = c.now().Add(time.Duration(body.Challenge.ExpiresIn) * time.Second)
		}
		return driven.LoginResult{Challenge: &ch}, nil
	default:
		return driven.LoginResult{}, fmt.Errorf("%w: login response has neither token nor challenge", model.ErrRemoteDataIncomplete)
	}
}

// CompleteChallenge submits the second-factor code for a pending challenge.
func (c *Client) CompleteChallenge(ctx context.Context, challenge model.Challenge, code string) (model.Credential, error) {
	var body authResponse
	req := func() *resty.Request {
		return c.http.R().SetBody(smsRequest{ChallengeID: challenge.ID, Code: code})
	}
	if err := c.do(ctx, http.MethodPost, "/auth/sms", req, &body); err != nil {
		return model.Credential{}, err
	}
	if body.Token == nil {
		return model.Credential{}, fmt.Errorf("%w: challenge response has no token", model.ErrRemoteDataIncomplete)
	}
	return c.credentialFrom(body.Token)
}

// FetchProfiles returns the profiles of the account owning cred.
func (c *Client) FetchProfiles(ctx context.Context, cred model.Credential) ([]model.Profile, error) {
	var body []profileJSON
	req := func() *resty.Request {
		return c.authorized(cred)
	}
	if err := c.do(ctx, http.MethodGet, "/profiles", req, &body); err != nil {
		return nil, err
	}

	profiles := make([]model.Profile, 0, len(body))
	for _, p := range body {
		profiles = append(profiles, model.Profile{ID: p.ID, Role: p.Type})
	}
	return profiles, nil
}

// FetchFamily returns the dependents linked to profileID.
func (c *Client) FetchFamily(ctx context.Context, cred model.Credential, profileID int64) (model.Family, error) {
	var body familyJSON
	req := func() *resty.Request {
		return c.authorized(cred).SetPathParam("profileID", strconv.FormatInt(profileID, 10))
	}
	if err := c.do(ctx, http.MethodGet, "/family/{profileID}", req, &body); err != nil {
		return model.Family{}, err
	}

	family := model.Family{Role: body.Profile.Type, Dependents: make([]model.Dependent, 0, len(body.Children))}
	for _, ch := range body.Children {
		family.Dependents = append(family.Dependents, model.Dependent{
			ID:         ch.ID,
			PersonGUID: ch.ContingentGUID,
			Name:       strings.TrimSpace(ch.FirstName + " " + ch.LastName),
		})
	}
	return family, nil
}

// FetchEvents returns the schedule events of dependent over [begin, end].
// Homework fragments are stripped of markup; events are otherwise returned as
// sent, including incomplete ones.
func (c *Client) FetchEvents(ctx context.Context, cred model.Credential, role string, dependent model.Dependent, begin, end model.Date) ([]model.Event, error) {
	var body eventsResponse
	req := func() *resty.Request {
		return c.authorized(cred).SetQueryParams(map[string]string{
			"person_guid": dependent.PersonGUID,
			"mes_role":    role,
			"begin_date":  begin.String(),
			"end_date":    end.String(),
		})
	}
	if err := c.do(ctx, http.MethodGet, "/events", req, &body); err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(body.Response))
	for _, e := range body.Response {
		ev := model.Event{
			ID:           e.ID,
			Subject:      strings.TrimSpace(e.SubjectName),
			StartAt:      e.StartAt,
			FinishAt:     e.FinishAt,
			Room:         strings.TrimSpace(e.RoomNumber),
			Topic:        strings.TrimSpace(e.LessonTheme),
			HasMaterials: len(e.Materials) > 0,
		}
		if e.Homework != nil {
			ev.HomeworkFragments = c.sanitizeFragments(e.Homework.Descriptions)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) authorized(cred model.Credential) *resty.Request {
	scheme := cred.TokenType
	if scheme == "" {
		scheme = "Bearer"
	}
	return c.http.R().SetHeader("Authorization", scheme+" "+cred.AccessToken)
}

func (c *Client) credentialFrom(t *tokenJSON) (model.Credential, error) {
	if t.AccessToken == "" {
		return model.Credential{}, fmt.Errorf("%w: token without access_token", model.ErrRemoteDataIncomplete)
	}
	cred := model.Credential{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresIn > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return cred, nil
}

// sanitizeFragments strips HTML from homework descriptions and drops fragments
// that are empty afterwards.
func (c *Client) sanitizeFragments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		clean := strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(s)))
		if clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// do executes one API call and decodes a successful JSON body into out. Only
// ErrRemoteUnavailable failures are retried. newRequest is called once per attempt.
func (c *Client) do(ctx context.Context, method, path string, newRequest func() *resty.Request, out any) error {
	var attempt uint
	var lastErr error
	err := retry.Do(
		func() error {
			attempt++
			lastErr = c.once(ctx, method, path, newRequest, out)
			if lastErr != nil && !errors.Is(lastErr, model.ErrRemoteUnavailable) {
				return retry.Unrecoverable(lastErr)
			}
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.RetryAttempts+1),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying diary request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}

	// retry-go reports cancellation during backoff as the bare context error.
	if ctxErr := ctx.Err(); ctxErr != nil || lastErr == nil {
		if ctxErr == nil {
			ctxErr = err
		}
		lastErr = fmt.Errorf("%w: %s %s: %w", model.ErrRemoteUnavailable, method, path, ctxErr)
	}

	c.logger.Debug("diary request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Uint("attempts", attempt),
		zap.Error(lastErr),
	)
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, newRequest func() *resty.Request, out any) error {
	resp, err := newRequest().SetContext(ctx).Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", model.ErrRemoteUnavailable, method, path, err)
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d%s", model.ErrCredentialInvalid, method, path, status, errorMessage(resp))
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s %s: status %d%s", model.ErrRemoteUnavailable, method, path, status, errorMessage(resp))
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: %s %s: status %d%s", model.ErrRemoteDataIncomplete, method, path, status, errorMessage(resp))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", model.ErrRemoteDataIncomplete, method, path, err)
	}
	return nil
}

func errorMessage(resp *resty.Response) string {
	var body errorResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Message == "" {
		return ""
	}
	return ": " + body.Message
}
