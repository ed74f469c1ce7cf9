// Package headless реализует клиент без UI. Он держит список разговоров, ленту открытого чата,
// сигнал «печатает» и звонок, получая изменения из живой ленты.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frinder/internal/callsession"
	"github.com/frinder/internal/client"
	"github.com/frinder/internal/convstore"
	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/swipe"
	"github.com/frinder/internal/timeline"
	"github.com/frinder/internal/typing"
	"github.com/frinder/internal/ws"
)

var (
	ErrNoConversation = errors.New("no conversation is open")
	ErrCallActive     = errors.New("a call is already active")
	ErrNoCall         = errors.New("no active call")
	ErrUnknownMatch   = errors.New("unknown conversation")
	ErrUnknownMessage = errors.New("message is not in this conversation")
	ErrUnknownRequest = errors.New("date request is not in this conversation")
	// ErrUnmatched: разговор разорван, история только для чтения.
	ErrUnmatched = errors.New("conversation is unmatched")
)

// API: вызовы бэкенда, которые нужны агенту. Реализуется *client.Client.
type API interface {
	convstore.ReadMarker
	typing.Writer
	callsession.Signaler

	Matches(ctx context.Context) ([]model.Match, error)
	Unmatched(ctx context.Context) ([]model.Match, error)
	Groups(ctx context.Context) ([]model.Group, error)
	CreateMatch(ctx context.Context, userID string) (*model.Match, error)
	Unmatch(ctx context.Context, matchID string) (*model.Match, error)
	Messages(ctx context.Context, matchID string, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, matchID string, in client.SendInput) (*model.Message, error)
	EditMessage(ctx context.Context, messageID, text string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (*model.Message, error)
	DateRequests(ctx context.Context, matchID string) ([]model.DateRequest, error)
	ProposeDate(ctx context.Context, matchID string, d daterequest.Draft) (*model.DateRequest, error)
	RespondDate(ctx context.Context, requestID string, status model.DateStatus) (*model.DateRequest, error)
	CancelDate(ctx context.Context, requestID string) (*model.DateRequest, error)
	IncomingCalls(ctx context.Context) ([]model.Call, error)
	Candidates(ctx context.Context, callID string) ([]model.ICECandidate, error)
}

type Options struct {
	UserID     string
	AutoAnswer bool
	// FullScreenCelebration: показывать принятие свидания на весь экран, иначе тостом.
	FullScreenCelebration bool
	TypingDelay           time.Duration
	// HighlightDelay: сколько держится подсветка после перехода к цитате.
	HighlightDelay time.Duration
	// NewPeer и Capture передаются в каждую сессию звонка.
	NewPeer func() (callsession.PeerConnection, error)
	Capture func() (callsession.AudioSource, error)
	// OnCelebrate вызывается при принятии свидания; по умолчанию: запись в лог.
	OnCelebrate func(req model.DateRequest, fullScreen bool)
}

type Agent struct {
	api     API
	opts    Options
	store   *convstore.Store
	tracker *timeline.AcceptanceTracker
	toasts  *daterequest.ToastGate
	deck    *swipe.Deck

	mu     sync.Mutex
	openID string
	tl     *timeline.Timeline
	typing *typing.Signal
	hl     *timeline.Highlighter
	call   *callsession.Session
}

func New(api API, tracker *timeline.AcceptanceTracker, opts Options) *Agent {
	if tracker == nil {
		tracker = timeline.NewAcceptanceTracker()
	}
	a := &Agent{
		api:     api,
		opts:    opts,
		store:   convstore.New(opts.UserID, api),
		tracker: tracker,
		toasts:  daterequest.NewToastGate(),
	}
	a.deck = swipe.NewDeck(a.onSwipe)
	return a
}

// Load загружает разговоры, группы и звонящие сейчас входящие.
func (a *Agent) Load(ctx context.Context) error {
	defer logger.DeferLogDuration("headless.Load", time.Now())()
	matches, err := a.api.Matches(ctx)
	if err != nil {
		return fmt.Errorf("headless.Load matches: %w", err)
	}
	a.store.ApplyMatches(matches)
	unmatched, err := a.api.Unmatched(ctx)
	if err != nil {
		return fmt.Errorf("headless.Load unmatched: %w", err)
	}
	a.store.ApplyUnmatched(unmatched)
	groups, err := a.api.Groups(ctx)
	if err != nil {
		return fmt.Errorf("headless.Load groups: %w", err)
	}
	snap := a.store.ApplyGroups(groups)
	logger.Infof("headless: new=%d conversations=%d unmatched=%d groups=%d",
		len(snap.New), len(snap.Conversations), len(snap.Unmatched), len(snap.Groups))

	calls, err := a.api.IncomingCalls(ctx)
	if err != nil {
		return fmt.Errorf("headless.Load calls: %w", err)
	}
	for _, c := range calls {
		a.onIncomingCall(ctx, c)
	}
	return nil
}

func (a *Agent) Snapshot() convstore.Snapshot { return a.store.Snapshot() }

// Deck: колода кандидатов; свайп вправо создаёт матч.
func (a *Agent) Deck() *swipe.Deck { return a.deck }

func (a *Agent) onSwipe(userID string, dir swipe.Direction) {
	if dir != swipe.Right {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := a.api.CreateMatch(ctx, userID)
	if err != nil {
		logger.Errorf("headless: match with %s: %v", userID, err)
		return
	}
	a.store.Upsert(*m)
}

// Open открывает разговор: отметка о прочтении, загрузка ленты, новый сигнал «печатает».
// Предыдущий открытый разговор закрывается.
func (a *Agent) Open(ctx context.Context, matchID string) error {
	if _, ok := a.store.Get(matchID); !ok {
		return fmt.Errorf("headless.Open %s: %w", matchID, ErrUnknownMatch)
	}
	a.closeConversation()
	if err := a.store.Open(ctx, matchID); err != nil {
		return fmt.Errorf("headless.Open mark read: %w", err)
	}
	tl := timeline.New(a.tracker, a.celebrate)
	msgs, err := a.api.Messages(ctx, matchID, 0)
	if err != nil {
		return fmt.Errorf("headless.Open messages: %w", err)
	}
	tl.SetMessages(msgs)
	reqs, err := a.api.DateRequests(ctx, matchID)
	if err != nil {
		return fmt.Errorf("headless.Open dates: %w", err)
	}
	tl.SetDateRequests(reqs)

	a.mu.Lock()
	a.openID = matchID
	a.tl = tl
	a.typing = typing.New(a.api, matchID, a.opts.TypingDelay)
	a.hl = timeline.NewHighlighter(a.opts.HighlightDelay)
	a.mu.Unlock()
	return nil
}

// CloseConversation: уход с экрана чата.
func (a *Agent) CloseConversation() { a.closeConversation() }

func (a *Agent) closeConversation() {
	a.mu.Lock()
	sig, hl := a.typing, a.hl
	a.openID, a.tl, a.typing, a.hl = "", nil, nil, nil
	a.mu.Unlock()
	if sig != nil {
		sig.Close()
	}
	if hl != nil {
		hl.Stop()
	}
}

func (a *Agent) open() (string, *timeline.Timeline, *typing.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openID, a.tl, a.typing
}

// Items: лента открытого разговора.
func (a *Agent) Items() []timeline.Item {
	_, tl, _ := a.open()
	if tl == nil {
		return nil
	}
	return tl.Items()
}

// writable возвращает открытый разговор, если в него ещё можно писать.
func (a *Agent) writable() (string, *timeline.Timeline, *typing.Signal, error) {
	id, tl, sig := a.open()
	if id == "" {
		return "", nil, nil, ErrNoConversation
	}
	if m, ok := a.store.Get(id); ok && m.IsUnmatched {
		return id, tl, sig, ErrUnmatched
	}
	return id, tl, sig, nil
}

func (a *Agent) Keystroke(ctx context.Context) {
	if _, _, sig, err := a.writable(); err == nil {
		sig.Keystroke(ctx)
	}
}

// Send снимает «печатает» и отправляет сообщение в открытый разговор.
func (a *Agent) Send(ctx context.Context, in client.SendInput) (*model.Message, error) {
	id, tl, sig, err := a.writable()
	if err != nil {
		return nil, err
	}
	if in.ReplyToID != "" && findMessage(tl, in.ReplyToID) == nil {
		return nil, ErrUnknownMessage
	}
	sig.Stop(ctx)
	msg, err := a.api.SendMessage(ctx, id, in)
	if err != nil {
		return nil, err
	}
	tl.UpsertMessage(*msg)
	return msg, nil
}

// Reply отвечает на сообщение открытого разговора с цитатой.
func (a *Agent) Reply(ctx context.Context, replyToID, text string) (*model.Message, error) {
	return a.Send(ctx, client.SendInput{Text: text, ReplyToID: replyToID})
}

// Edit правит своё сообщение. Удалённые и чужие отклоняет сервер.
func (a *Agent) Edit(ctx context.Context, messageID, text string) (*model.Message, error) {
	_, tl, _ := a.open()
	if tl == nil {
		return nil, ErrNoConversation
	}
	if findMessage(tl, messageID) == nil {
		return nil, ErrUnknownMessage
	}
	msg, err := a.api.EditMessage(ctx, messageID, text)
	if err != nil {
		return nil, err
	}
	tl.UpsertMessage(*msg)
	return msg, nil
}

// Delete удаляет своё сообщение для всех. Лента перечитывается: цитаты в ответах тоже стали заглушкой.
func (a *Agent) Delete(ctx context.Context, messageID string) error {
	id, tl, _ := a.open()
	if tl == nil {
		return ErrNoConversation
	}
	if findMessage(tl, messageID) == nil {
		return ErrUnknownMessage
	}
	if _, err := a.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	return a.reloadMessages(ctx, id, tl)
}

func (a *Agent) reloadMessages(ctx context.Context, id string, tl *timeline.Timeline) error {
	msgs, err := a.api.Messages(ctx, id, 0)
	if err != nil {
		return err
	}
	tl.SetMessages(msgs)
	return nil
}

// JumpTo переходит к сообщению, на которое ссылается ответ, и подсвечивает его.
// Возвращает позицию в списке сообщений.
func (a *Agent) JumpTo(messageID string) (int, error) {
	a.mu.Lock()
	tl, hl := a.tl, a.hl
	a.mu.Unlock()
	if tl == nil {
		return -1, ErrNoConversation
	}
	idx, ok := hl.Resolve(tl.Messages(), messageID)
	if !ok {
		return -1, ErrUnknownMessage
	}
	return idx, nil
}

// Highlighted: подсвеченное сейчас сообщение или "".
func (a *Agent) Highlighted() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hl == nil {
		return ""
	}
	return a.hl.Current()
}

// Unmatch разрывает открытый разговор. История остаётся доступной для чтения.
func (a *Agent) Unmatch(ctx context.Context) error {
	id, _, sig := a.open()
	if id == "" {
		return ErrNoConversation
	}
	m, err := a.api.Unmatch(ctx, id)
	if err != nil {
		return err
	}
	sig.Stop(ctx)
	a.store.Upsert(*m)
	return nil
}

func findMessage(tl *timeline.Timeline, id string) *model.Message {
	for _, m := range tl.Messages() {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

func findRequest(tl *timeline.Timeline, id string) *model.DateRequest {
	for _, it := range tl.Items() {
		if it.Kind == timeline.KindDateRequest && it.DateRequest.ID == id {
			return it.DateRequest
		}
	}
	return nil
}

// DateActions: какие кнопки показать текущему пользователю для предложения.
func (a *Agent) DateActions(req *model.DateRequest) (canRespond, canCancel bool) {
	return daterequest.Actionable(req, a.opts.UserID)
}

func (a *Agent) ProposeDate(ctx context.Context, d daterequest.Draft) (*model.DateRequest, error) {
	id, tl, _, err := a.writable()
	if err != nil {
		return nil, err
	}
	req, err := a.api.ProposeDate(ctx, id, d)
	if err != nil {
		return nil, err
	}
	tl.UpsertDateRequest(*req)
	return req, nil
}

// RespondDate принимает или отклоняет предложение открытого разговора.
func (a *Agent) RespondDate(ctx context.Context, requestID string, status model.DateStatus) (*model.DateRequest, error) {
	_, tl, _, err := a.writable()
	if err != nil {
		return nil, err
	}
	cur := findRequest(tl, requestID)
	if cur == nil {
		return nil, ErrUnknownRequest
	}
	if canRespond, _ := a.DateActions(cur); !canRespond {
		return nil, daterequest.ErrNotAllowed
	}
	req, err := a.api.RespondDate(ctx, requestID, status)
	if err != nil {
		return nil, err
	}
	tl.UpsertDateRequest(*req)
	return req, nil
}

// CancelDate отменяет ожидающее или уже принятое свидание. Разрешено и после разрыва.
func (a *Agent) CancelDate(ctx context.Context, requestID string) (*model.DateRequest, error) {
	_, tl, _ := a.open()
	if tl == nil {
		return nil, ErrNoConversation
	}
	cur := findRequest(tl, requestID)
	if cur == nil {
		return nil, ErrUnknownRequest
	}
	if _, canCancel := a.DateActions(cur); !canCancel {
		return nil, daterequest.ErrNotAllowed
	}
	req, err := a.api.CancelDate(ctx, requestID)
	if err != nil {
		return nil, err
	}
	tl.UpsertDateRequest(*req)
	return req, nil
}

// celebrate: праздник только у отправителя, который ждал ответа; принявший его не видит.
func (a *Agent) celebrate(req model.DateRequest) {
	if req.SenderID != a.opts.UserID {
		return
	}
	if a.opts.OnCelebrate != nil {
		a.opts.OnCelebrate(req, a.opts.FullScreenCelebration)
		return
	}
	if a.opts.FullScreenCelebration {
		logger.Infof("headless: 🎉 свидание «%s» принято (%s %s, %s)", req.Title, req.Date, req.Time, req.Location)
		return
	}
	logger.Infof("headless: свидание «%s» принято", req.Title)
}

// --- звонки ---

func (a *Agent) newSession() *callsession.Session {
	return callsession.New(callsession.Deps{
		Signaler: a.api,
		Capture:  a.opts.Capture,
		NewPeer:  a.opts.NewPeer,
	}, callsession.WithOnChange(func(st callsession.State) {
		if st.Err != nil {
			logger.Errorf("headless: call %s: %v", st.CallID, st.Err)
			return
		}
		logger.Infof("headless: call %s %s %s", st.CallID, st.Status, st.Duration.Truncate(time.Second))
	}))
}

// claimSession возвращает новую сессию, если текущей нет или она завершена.
func (a *Agent) claimSession() (*callsession.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.call != nil {
		if st := a.call.State(); st.Status != "" && !st.Status.Terminal() {
			return nil, false
		}
	}
	a.call = a.newSession()
	return a.call, true
}

func (a *Agent) current() *callsession.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.call
}

// Call звонит собеседнику открытого разговора.
func (a *Agent) Call(ctx context.Context) (string, error) {
	id, _, _, err := a.writable()
	if err != nil {
		return "", err
	}
	m, _ := a.store.Get(id)
	s, ok := a.claimSession()
	if !ok {
		return "", ErrCallActive
	}
	return s.StartOutgoing(ctx, id, m.Other(a.opts.UserID))
}

func (a *Agent) Hangup(ctx context.Context) error {
	s := a.current()
	if s == nil {
		return ErrNoCall
	}
	s.Hangup(ctx)
	return nil
}

func (a *Agent) SetMuted(muted bool) error {
	s := a.current()
	if s == nil {
		return ErrNoCall
	}
	s.SetMuted(muted)
	return nil
}

// CallState: состояние текущего звонка; ok=false, если звонков не было.
func (a *Agent) CallState() (callsession.State, bool) {
	s := a.current()
	if s == nil {
		return callsession.State{}, false
	}
	return s.State(), true
}

func (a *Agent) onIncomingCall(ctx context.Context, c model.Call) {
	if c.CalleeID != a.opts.UserID || c.Status != model.CallStatusRinging {
		return
	}
	s, ok := a.claimSession()
	if !ok {
		logger.Infof("headless: занято, входящий %s от %s пропущен", c.ID, c.CallerName)
		return
	}
	if !a.opts.AutoAnswer {
		logger.Infof("headless: входящий звонок %s от %s", c.ID, c.CallerName)
		if err := s.Decline(ctx, c); err != nil {
			logger.Errorf("headless: decline %s: %v", c.ID, err)
		}
		return
	}
	if err := s.AnswerIncoming(ctx, c); err != nil {
		logger.Errorf("headless: answer %s: %v", c.ID, err)
		return
	}
	// кандидаты, записанные звонящим до подключения к ленте
	early, err := a.api.Candidates(ctx, c.ID)
	if err != nil {
		logger.Errorf("headless: candidates %s: %v", c.ID, err)
		return
	}
	for _, ic := range early {
		s.OnRemoteCandidate(ic.Candidate)
	}
}

// Close завершает звонок и закрывает разговор.
func (a *Agent) Close(ctx context.Context) {
	if s := a.current(); s != nil {
		s.Hangup(ctx)
	}
	a.closeConversation()
}

// --- живая лента ---

// Handle применяет событие живой ленты. Вызывается последовательно.
func (a *Agent) Handle(ctx context.Context, ev client.Event) {
	if err := a.handle(ctx, ev); err != nil {
		logger.Errorf("headless: event %s: %v", ev.Type, err)
	}
}

func (a *Agent) handle(ctx context.Context, ev client.Event) error {
	switch ev.Type {
	case ws.EventMatchCreated, ws.EventMatchUpdated:
		var m model.Match
		if err := ev.Decode(&m); err != nil {
			return err
		}
		a.store.Upsert(m)
	case ws.EventGroupUpdated:
		var g model.Group
		if err := ev.Decode(&g); err != nil {
			return err
		}
		a.store.UpsertGroup(g)
	case ws.EventNewMessage, ws.EventMessageEdited:
		var msg model.Message
		if err := ev.Decode(&msg); err != nil {
			return err
		}
		if id, tl, _ := a.open(); id == msg.MatchID {
			tl.UpsertMessage(msg)
			// разговор открыт: входящее сразу прочитано
			if ev.Type == ws.EventNewMessage && msg.SenderID != a.opts.UserID {
				return a.store.Open(ctx, id)
			}
		}
	case ws.EventMessageDeleted:
		var p ws.MessageDeletedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if id, tl, _ := a.open(); id == p.MatchID {
			msgs, err := a.api.Messages(ctx, id, 0)
			if err != nil {
				return err
			}
			tl.SetMessages(msgs)
		}
	case ws.EventDateRequest:
		var req model.DateRequest
		if err := ev.Decode(&req); err != nil {
			return err
		}
		id, tl, _ := a.open()
		if id == req.MatchID {
			tl.UpsertDateRequest(req)
		}
		if a.toasts.Allow(a.opts.UserID, &req, id) {
			logger.Infof("headless: свидание «%s» принято", req.Title)
		}
	case ws.EventTyping:
		var p ws.TypingPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if id, _, _ := a.open(); id == p.MatchID && p.Typing {
			logger.Infof("headless: собеседник печатает…")
		}
	case ws.EventCallIncoming:
		var c model.Call
		if err := ev.Decode(&c); err != nil {
			return err
		}
		a.onIncomingCall(ctx, c)
	case ws.EventCallUpdated:
		var c model.Call
		if err := ev.Decode(&c); err != nil {
			return err
		}
		if s := a.current(); s != nil {
			s.OnRemoteCall(ctx, c)
		}
	case ws.EventICECandidate:
		var p ws.ICECandidatePayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if s := a.current(); s != nil && s.State().CallID == p.CallID {
			s.OnRemoteCandidate(p.Candidate.Candidate)
		}
	case ws.EventError:
		var msg string
		_ = ev.Decode(&msg)
		logger.Errorf("headless: server: %s", msg)
	}
	return nil
}
