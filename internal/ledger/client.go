package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hopfenspace/matebot-telegram/internal/observability"
	"github.com/hopfenspace/matebot-telegram/internal/retry"
)

// ClientConfig configures the HTTP client for the core service.
type ClientConfig struct {
	BaseURL     string
	Application string
	Password    string
	UserAgent   string
	Timeout     time.Duration
	Retry       retry.Policy

	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
	Identities *Identities
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Client talks JSON to the MateBot core service. It logs in lazily and
// again when the token expires.
type Client struct {
	baseURL     string
	application string
	password    string
	userAgent   string
	policy      retry.Policy
	httpClient  *http.Client
	identities  *Identities
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu    sync.Mutex
	token string
	appID int64
}

var _ Ledger = (*Client)(nil)

// NewClient validates cfg and creates a client. No request is made.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("ledger base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid ledger base URL: %w", err)
	}
	if cfg.Application == "" {
		return nil, errors.New("ledger application name is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ids := cfg.Identities
	if ids == nil {
		ids = NewIdentities()
	}

	return &Client{
		baseURL:     base,
		application: cfg.Application,
		password:    cfg.Password,
		userAgent:   cfg.UserAgent,
		policy:      cfg.Retry,
		httpClient:  httpClient,
		identities:  ids,
		logger:      logger.With("component", "ledger"),
		metrics:     cfg.Metrics,
	}, nil
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type application struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Login authenticates the application and looks up its id.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.application},
		"password":   {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.decorate(req)

	var login loginResponse
	if err := c.send(req, "login", &login); err != nil {
		return err
	}
	if login.AccessToken == "" {
		return &RemoteError{Kind: Rejected, Operation: "login", Message: "empty access token"}
	}
	c.token = login.AccessToken

	var apps []application
	if err := c.doOnce(ctx, "applications", http.MethodGet, "/v1/applications", url.Values{"name": {c.application}}, nil, &apps, c.token); err != nil {
		return err
	}
	if len(apps) != 1 {
		return &RemoteError{Kind: Rejected, Operation: "applications", Message: fmt.Sprintf("application %q not found", c.application)}
	}
	c.appID = apps[0].ID
	c.logger.Info("logged in to ledger", "application", c.application, "application_id", c.appID)
	return nil
}

// session returns a valid token and the application id, logging in if needed.
func (c *Client) session(ctx context.Context, stale string) (string, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.token == stale {
		if err := c.loginLocked(ctx); err != nil {
			return "", 0, err
		}
	}
	return c.token, c.appID, nil
}

// ApplicationID returns the id of this application, logging in if needed.
func (c *Client) ApplicationID(ctx context.Context) (int64, error) {
	_, id, err := c.session(ctx, "")
	return id, err
}

// call performs an authenticated request with one re-login when the token
// was rejected. GET requests are retried on connectivity failures. Other
// methods are retried only while the login in front of them fails; once
// the request itself went out it is never repeated.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	idempotent := method == http.MethodGet
	written := false
	retryable := func(err error) bool {
		return IsConnectivity(err) && (idempotent || !written)
	}
	result := retry.Do(ctx, c.policy, retryable, func(attempt int) error {
		token, _, err := c.session(ctx, "")
		if err != nil {
			return err
		}
		written = true
		err = c.doOnce(ctx, op, method, path, query, body, out, token)
		var remote *RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusUnauthorized {
			c.logger.Debug("ledger token rejected, logging in again", "operation", op)
			if token, _, err = c.session(ctx, token); err != nil {
				return err
			}
			err = c.doOnce(ctx, op, method, path, query, body, out, token)
		}
		if err != nil && attempt > 1 {
			c.logger.Warn("ledger request failed again", "operation", op, "attempt", attempt, "error", err)
		}
		return err
	})
	c.metrics.RecordLedgerRequest(op, statusLabel(result.Err), time.Since(start).Seconds())
	return result.Err
}

func statusLabel(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &remote):
		return string(remote.Kind)
	default:
		return "error"
	}
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, query url.Values, body, out any, token string) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.decorate(req)
	return c.send(req, op, out)
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func (c *Client) send(req *http.Request, op string, out any) error {
	ctx := observability.WithRequestID(req.Context(), req.Header.Get("X-Request-ID"))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &RemoteError{Kind: Connectivity, Operation: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "ledger response", "operation", op, "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var detail errorResponse
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &detail) == nil && detail.Message != "" {
			message = detail.Message
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("ledger %s: %w", op, ErrNotFound)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &RemoteError{Kind: Connectivity, Operation: op, Status: resp.StatusCode, Message: message}
		default:
			return &RemoteError{Kind: Rejected, Operation: op, Status: resp.StatusCode, Message: message}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Kind: Malformed, Operation: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) getUsers(ctx context.Context, op string, query url.Values) ([]User, error) {
	var users []User
	if err := c.call(ctx, op, http.MethodGet, "/v1/users", query, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func single[T any](items []T) (*T, error) {
	switch len(items) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &items[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

// ResolveKnownIdentity finds the active user with a confirmed alias for the
// Telegram account.
func (c *Client) ResolveKnownIdentity(ctx context.Context, telegramID int64) (*User, error) {
	appID, err := c.ApplicationID(ctx)
	if err != nil {
		return nil, err
	}
	users, err := c.getUsers(ctx, "users.alias", url.Values{
		"alias_application_id": {strconv.FormatInt(appID, 10)},
		"alias_username":       {strconv.FormatInt(telegramID, 10)},
		"alias_confirmed":      {"true"},
		"active":               {"true"},
	})
	if err != nil {
		return nil, err
	}
	return single(users)
}

// ResolveIdentityByText finds a user by Telegram username or name.
func (c *Client) ResolveIdentityByText(ctx context.Context, text string, allowUnknown bool) (*User, error) {
	appID, err := c.ApplicationID(ctx)
	if err != nil {
		return nil, err
	}
	return resolveByText(ctx, c, c.identities, appID, text, allowUnknown)
}

func (c *Client) usersByName(ctx context.Context, name string) ([]User, error) {
	return c.getUsers(ctx, "users.name", url.Values{"name": {name}, "active": {"true"}})
}

// GetUser returns the user with the given core id.
func (c *Client) GetUser(ctx context.Context, id int64) (*User, error) {
	users, err := c.getUsers(ctx, "users.get", url.Values{"id": {strconv.FormatInt(id, 10)}})
	if err != nil {
		return nil, err
	}
	return single(users)
}

// Community returns the community user.
func (c *Client) Community(ctx context.Context) (*User, error) {
	users, err := c.getUsers(ctx, "users.community", url.Values{"community": {"true"}})
	if err != nil {
		return nil, err
	}
	return single(users)
}

// NameTaken reports whether an active user already uses name.
func (c *Client) NameTaken(ctx context.Context, name string) (bool, error) {
	users, err := c.usersByName(ctx, name)
	if err != nil {
		return false, err
	}
	return len(users) > 0, nil
}

// SignUp creates an external user without extended permissions and binds
// the Telegram account to it with a confirmed alias.
func (c *Client) SignUp(ctx context.Context, name string, account Account) (*User, error) {
	appID, err := c.ApplicationID(ctx)
	if err != nil {
		return nil, err
	}
	var user User
	body := map[string]any{"name": name, "external": true, "permission": false}
	if err := c.call(ctx, "signup", http.MethodPost, "/v1/users", nil, body, &user); err != nil {
		return nil, err
	}

	var alias Alias
	body = map[string]any{
		"user_id":        user.ID,
		"application_id": appID,
		"username":       strconv.FormatInt(account.TelegramID, 10),
		"confirmed":      true,
	}
	if err := c.call(ctx, "signup.alias", http.MethodPost, "/v1/aliases", nil, body, &alias); err != nil {
		return nil, fmt.Errorf("user %d created without alias: %w", user.ID, err)
	}
	user.Aliases = append(user.Aliases, alias)
	c.identities.Remember(account)
	return &user, nil
}

// SetUsername renames a user.
func (c *Client) SetUsername(ctx context.Context, userID int64, name string) (*User, error) {
	var user User
	body := map[string]any{"id": userID, "name": name}
	if err := c.call(ctx, "users.name", http.MethodPost, "/v1/users/setName", nil, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ConfirmAlias accepts an alias on behalf of the user owning it.
func (c *Client) ConfirmAlias(ctx context.Context, aliasID, issuerID int64) (*Alias, error) {
	var alias Alias
	body := map[string]any{"id": aliasID, "issuer": issuerID}
	if err := c.call(ctx, "aliases.confirm", http.MethodPost, "/v1/aliases/confirm", nil, body, &alias); err != nil {
		return nil, err
	}
	return &alias, nil
}

// DeleteAlias removes an alias on behalf of the user owning it.
func (c *Client) DeleteAlias(ctx context.Context, aliasID, issuerID int64) error {
	body := map[string]any{"id": aliasID, "issuer": issuerID}
	return c.call(ctx, "aliases.delete", http.MethodDelete, "/v1/aliases", nil, body, nil)
}

// TopDebtors returns up to count users with the lowest balances below zero.
func (c *Client) TopDebtors(ctx context.Context, count int) ([]User, error) {
	community, err := c.Community(ctx)
	if err != nil {
		return nil, err
	}
	users, err := c.getUsers(ctx, "users.list", url.Values{"active": {"true"}})
	if err != nil {
		return nil, err
	}
	return topDebtors(users, community.ID, count), nil
}

// ListConsumables returns the catalog.
func (c *Client) ListConsumables(ctx context.Context) ([]Consumable, error) {
	var items []Consumable
	if err := c.call(ctx, "consumables", http.MethodGet, "/v1/consumables", nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

type transactionRequest struct {
	Sender   int64  `json:"sender"`
	Receiver int64  `json:"receiver"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

// Send moves amount from sender to receiver.
func (c *Client) Send(ctx context.Context, senderID, receiverID, amount int64, reason string) (*Transaction, error) {
	var tx Transaction
	body := transactionRequest{Sender: senderID, Receiver: receiverID, Amount: amount, Reason: reason}
	if err := c.call(ctx, "send", http.MethodPost, "/v1/transactions", nil, body, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Donate sends amount to the community user.
func (c *Client) Donate(ctx context.Context, senderID, amount int64, reason string) (*Transaction, error) {
	community, err := c.Community(ctx)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, senderID, community.ID, amount, reason)
}

// Consume buys number items of the named consumable.
func (c *Client) Consume(ctx context.Context, userID int64, consumable string, number int) (*Transaction, error) {
	var tx Transaction
	body := map[string]any{"user": userID, "consumable": consumable, "amount": number}
	if err := c.call(ctx, "consume", http.MethodPost, "/v1/transactions/consume", nil, body, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// History returns the newest transactions of a user, newest first.
func (c *Client) History(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	query := url.Values{
		"member_id":  {strconv.FormatInt(userID, 10)},
		"descending": {"true"},
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var txs []Transaction
	if err := c.call(ctx, "history", http.MethodGet, "/v1/transactions", query, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// CreateCommunism opens a communism with the creator as first participant.
func (c *Client) CreateCommunism(ctx context.Context, creatorID, amount int64, description string) (*Communism, error) {
	var com Communism
	body := map[string]any{"creator": creatorID, "amount": amount, "description": description}
	if err := c.call(ctx, "communism.create", http.MethodPost, "/v1/communisms", nil, body, &com); err != nil {
		return nil, err
	}
	return &com, nil
}

// ActiveCommunisms lists the open communisms created by a user.
func (c *Client) ActiveCommunisms(ctx context.Context, creatorID int64) ([]Communism, error) {
	var coms []Communism
	query := url.Values{"creator_id": {strconv.FormatInt(creatorID, 10)}, "active": {"true"}}
	if err := c.call(ctx, "communism.list", http.MethodGet, "/v1/communisms", query, nil, &coms); err != nil {
		return nil, err
	}
	return coms, nil
}

// GetCommunism returns one communism.
func (c *Client) GetCommunism(ctx context.Context, id int64) (*Communism, error) {
	var coms []Communism
	if err := c.call(ctx, "communism.get", http.MethodGet, "/v1/communisms", url.Values{"id": {strconv.FormatInt(id, 10)}}, nil, &coms); err != nil {
		return nil, err
	}
	return single(coms)
}

func (c *Client) communismAction(ctx context.Context, op, path string, body map[string]any) (*Communism, error) {
	var com Communism
	if err := c.call(ctx, op, http.MethodPost, path, nil, body, &com); err != nil {
		return nil, err
	}
	return &com, nil
}

// JoinCommunism adds one share for the user.
func (c *Client) JoinCommunism(ctx context.Context, id, userID int64) (*Communism, error) {
	return c.communismAction(ctx, "communism.join", "/v1/communisms/increaseParticipation", map[string]any{"id": id, "user": userID})
}

// LeaveCommunism removes one share of the user.
func (c *Client) LeaveCommunism(ctx context.Context, id, userID int64) (*Communism, error) {
	return c.communismAction(ctx, "communism.leave", "/v1/communisms/decreaseParticipation", map[string]any{"id": id, "user": userID})
}

// CloseCommunism settles the communism; only its creator may do so.
func (c *Client) CloseCommunism(ctx context.Context, id, issuerID int64) (*Communism, error) {
	return c.communismAction(ctx, "communism.close", "/v1/communisms/close", map[string]any{"id": id, "issuer": issuerID})
}

// AbortCommunism cancels the communism without any transaction.
func (c *Client) AbortCommunism(ctx context.Context, id, issuerID int64) (*Communism, error) {
	return c.communismAction(ctx, "communism.abort", "/v1/communisms/abort", map[string]any{"id": id, "issuer": issuerID})
}

// CreateRefund asks the community to pay amount back to the creator.
func (c *Client) CreateRefund(ctx context.Context, creatorID, amount int64, description string) (*Refund, error) {
	var r Refund
	body := map[string]any{"creator": creatorID, "amount": amount, "description": description}
	if err := c.call(ctx, "refund.create", http.MethodPost, "/v1/refunds", nil, body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ActiveRefunds lists the open refund requests of a user.
func (c *Client) ActiveRefunds(ctx context.Context, creatorID int64) ([]Refund, error) {
	var refunds []Refund
	query := url.Values{"creator_id": {strconv.FormatInt(creatorID, 10)}, "active": {"true"}}
	if err := c.call(ctx, "refund.list", http.MethodGet, "/v1/refunds", query, nil, &refunds); err != nil {
		return nil, err
	}
	return refunds, nil
}

// VoteRefund records the vote of a user. The core service closes the
// request once enough votes agree.
func (c *Client) VoteRefund(ctx context.Context, id, userID int64, approve bool) (*Refund, error) {
	path := "/v1/refunds/disapprove"
	if approve {
		path = "/v1/refunds/approve"
	}
	var resp struct {
		Refund Refund `json:"refund"`
	}
	if err := c.call(ctx, "refund.vote", http.MethodPost, path, nil, map[string]any{"id": id, "user": userID}, &resp); err != nil {
		return nil, err
	}
	return &resp.Refund, nil
}

// AbortRefund withdraws the request; only its creator may do so.
func (c *Client) AbortRefund(ctx context.Context, id, issuerID int64) (*Refund, error) {
	var r Refund
	if err := c.call(ctx, "refund.abort", http.MethodPost, "/v1/refunds/abort", nil, map[string]any{"id": id, "issuer": issuerID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetVoucher sets or clears the voucher of a debtor.
func (c *Client) SetVoucher(ctx context.Context, debtorID int64, voucherID *int64) (*User, error) {
	var resp struct {
		Debtor User `json:"debtor"`
	}
	body := map[string]any{"debtor": debtorID, "voucher": voucherID}
	if err := c.call(ctx, "vouch", http.MethodPost, "/v1/users/setVoucher", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Debtor, nil
}

// Debtors lists the users the voucher is responsible for.
func (c *Client) Debtors(ctx context.Context, voucherID int64) ([]User, error) {
	return c.getUsers(ctx, "users.debtors", url.Values{"voucher_id": {strconv.FormatInt(voucherID, 10)}, "active": {"true"}})
}
