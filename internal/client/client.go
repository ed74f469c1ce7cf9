// Package client это Go SDK для API Frinder: REST-вызовы и живая лента по WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/frinder/internal/config"
	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/model"
)

// APIError: ответ API с кодом не 2xx.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// IsStatus сообщает, что err: ответ API с данным кодом.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client работает от имени одного пользователя (bearer-токен).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client %s %s decode: %w", method, path, err)
	}
	return nil
}

func esc(s string) string { return url.PathEscape(s) }

// --- матчи ---

func (c *Client) Matches(ctx context.Context) ([]model.Match, error) {
	var list []model.Match
	err := c.do(ctx, http.MethodGet, "/api/matches", nil, &list)
	return list, err
}

func (c *Client) Unmatched(ctx context.Context) ([]model.Match, error) {
	var list []model.Match
	err := c.do(ctx, http.MethodGet, "/api/matches/unmatched", nil, &list)
	return list, err
}

// CreateMatch: взаимный свайп с userID. Повторный вызов возвращает существующий матч.
func (c *Client) CreateMatch(ctx context.Context, userID string) (*model.Match, error) {
	var m model.Match
	if err := c.do(ctx, http.MethodPost, "/api/matches", map[string]string{"user_id": userID}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Match(ctx context.Context, matchID string) (*model.Match, error) {
	var m model.Match
	if err := c.do(ctx, http.MethodGet, "/api/matches/"+esc(matchID), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Unmatch(ctx context.Context, matchID string) (*model.Match, error) {
	var m model.Match
	if err := c.do(ctx, http.MethodPost, "/api/matches/"+esc(matchID)+"/unmatch", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkRead вызывается при открытии разговора: входящие помечаются прочитанными, счётчик обнуляется.
func (c *Client) MarkRead(ctx context.Context, matchID string) error {
	return c.do(ctx, http.MethodPost, "/api/matches/"+esc(matchID)+"/read", nil, nil)
}

func (c *Client) SetTyping(ctx context.Context, matchID string, typing bool) error {
	return c.do(ctx, http.MethodPost, "/api/matches/"+esc(matchID)+"/typing", map[string]bool{"typing": typing}, nil)
}

// Typing: печатает ли собеседник сейчас.
func (c *Client) Typing(ctx context.Context, matchID string) (*model.TypingStatus, error) {
	var st model.TypingStatus
	if err := c.do(ctx, http.MethodGet, "/api/matches/"+esc(matchID)+"/typing", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// --- сообщения ---

type SendInput struct {
	Text      string `json:"text,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// Messages: лента по возрастанию времени; при limit <= 0 берётся значение сервера.
func (c *Client) Messages(ctx context.Context, matchID string, limit int) ([]model.Message, error) {
	path := "/api/matches/" + esc(matchID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list []model.Message
	err := c.do(ctx, http.MethodGet, path, nil, &list)
	return list, err
}

func (c *Client) SendMessage(ctx context.Context, matchID string, in SendInput) (*model.Message, error) {
	var m model.Message
	if err := c.do(ctx, http.MethodPost, "/api/matches/"+esc(matchID)+"/messages", in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) EditMessage(ctx context.Context, messageID, text string) (*model.Message, error) {
	var m model.Message
	if err := c.do(ctx, http.MethodPut, "/api/messages/"+esc(messageID), map[string]string{"text": text}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) (*model.Message, error) {
	var m model.Message
	if err := c.do(ctx, http.MethodDelete, "/api/messages/"+esc(messageID), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- свидания ---

func (c *Client) DateRequests(ctx context.Context, matchID string) ([]model.DateRequest, error) {
	var list []model.DateRequest
	err := c.do(ctx, http.MethodGet, "/api/matches/"+esc(matchID)+"/dates", nil, &list)
	return list, err
}

// ProposeDate проверяет черновик локально и только потом обращается к API.
func (c *Client) ProposeDate(ctx context.Context, matchID string, d daterequest.Draft) (*model.DateRequest, error) {
	d = d.Normalize()
	if err := daterequest.Validate(d); err != nil {
		return nil, err
	}
	var req model.DateRequest
	if err := c.do(ctx, http.MethodPost, "/api/matches/"+esc(matchID)+"/dates", d, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) RespondDate(ctx context.Context, requestID string, status model.DateStatus) (*model.DateRequest, error) {
	var req model.DateRequest
	if err := c.do(ctx, http.MethodPost, "/api/dates/"+esc(requestID)+"/respond", map[string]model.DateStatus{"status": status}, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) CancelDate(ctx context.Context, requestID string) (*model.DateRequest, error) {
	var req model.DateRequest
	if err := c.do(ctx, http.MethodPost, "/api/dates/"+esc(requestID)+"/cancel", nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// --- звонки ---

// CreateCall: собеседника сервер определяет по матчу, calleeID не отправляется.
func (c *Client) CreateCall(ctx context.Context, matchID, _ string, offer model.SessionDescription) (model.Call, error) {
	var call model.Call
	in := struct {
		MatchID string                   `json:"match_id"`
		Offer   model.SessionDescription `json:"offer"`
	}{matchID, offer}
	err := c.do(ctx, http.MethodPost, "/api/calls", in, &call)
	return call, err
}

func (c *Client) AnswerCall(ctx context.Context, callID string, answer model.SessionDescription) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+esc(callID)+"/answer",
		map[string]model.SessionDescription{"answer": answer}, nil)
}

func (c *Client) AddCandidate(ctx context.Context, callID string, candidate json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+esc(callID)+"/candidates",
		map[string]json.RawMessage{"candidate": candidate}, nil)
}

func (c *Client) SetStatus(ctx context.Context, callID string, status model.CallStatus, reason string) error {
	in := struct {
		Status model.CallStatus `json:"status"`
		Reason string           `json:"reason,omitempty"`
	}{status, reason}
	return c.do(ctx, http.MethodPost, "/api/calls/"+esc(callID)+"/status", in, nil)
}

func (c *Client) Call(ctx context.Context, callID string) (*model.Call, error) {
	var call model.Call
	if err := c.do(ctx, http.MethodGet, "/api/calls/"+esc(callID), nil, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// IncomingCalls: звонки со статусом ringing, где пользователь принимающий.
func (c *Client) IncomingCalls(ctx context.Context) ([]model.Call, error) {
	var list []model.Call
	err := c.do(ctx, http.MethodGet, "/api/calls/incoming", nil, &list)
	return list, err
}

func (c *Client) Candidates(ctx context.Context, callID string) ([]model.ICECandidate, error) {
	var list []model.ICECandidate
	err := c.do(ctx, http.MethodGet, "/api/calls/"+esc(callID)+"/candidates", nil, &list)
	return list, err
}

// --- группы ---

func (c *Client) Groups(ctx context.Context) ([]model.Group, error) {
	var list []model.Group
	err := c.do(ctx, http.MethodGet, "/api/groups", nil, &list)
	return list, err
}

func (c *Client) SearchGroups(ctx context.Context, query string) ([]model.Group, error) {
	var list []model.Group
	err := c.do(ctx, http.MethodGet, "/api/groups/search?q="+url.QueryEscape(query), nil, &list)
	return list, err
}

// --- конфигурация ---

type CallConfig struct {
	ICEServers       []config.IceServer `json:"ice_servers"`
	TypingTTLSeconds int                `json:"typing_ttl_seconds"`
}

func (c *Client) CallConfig(ctx context.Context) (*CallConfig, error) {
	var cc CallConfig
	if err := c.do(ctx, http.MethodGet, "/api/config/call", nil, &cc); err != nil {
		return nil, err
	}
	return &cc, nil
}
