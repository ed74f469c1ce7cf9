// Headless-клиент Frinder: живая лента, чаты, свидания и звонки без UI. Команды: построчно из stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/frinder/internal/callsession"
	"github.com/frinder/internal/client"
	"github.com/frinder/internal/config"
	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/headless"
	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/swipe"
	"github.com/frinder/internal/timeline"
)

func main() {
	logger.SetPrefix("headless")
	defer logger.Sync()
	openID := flag.String("open", "", "open conversation on start")
	celebrate := flag.String("celebrate", "", "date celebration style: fullscreen | toast (saved)")
	flag.Parse()

	cfg := config.LoadClient()
	if cfg.Token == "" || cfg.UserID == "" {
		logger.Errorf("FRINDER_TOKEN и FRINDER_USER_ID обязательны")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := headless.LoadState(cfg.StateFile)
	if err != nil {
		logger.Errorf("state: %v", err)
	}
	fullScreen := st.Celebration()
	switch *celebrate {
	case "fullscreen":
		fullScreen = true
	case "toast":
		fullScreen = false
	}
	tracker := timeline.NewAcceptanceTracker()
	tracker.Restore(st.Acceptance)

	api := client.New(cfg.APIURL, cfg.Token)
	callCfg, err := api.CallConfig(ctx)
	if err != nil {
		logger.Errorf("call config: %v", err)
		os.Exit(1)
	}

	agent := headless.New(api, tracker, headless.Options{
		UserID:                cfg.UserID,
		AutoAnswer:            cfg.AutoAnswer,
		FullScreenCelebration: fullScreen,
		NewPeer:               callsession.PionFactory(callCfg.ICEServers),
		Capture:               callsession.CaptureSilence,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		agent.Close(shutdownCtx)
		if err := headless.SaveState(cfg.StateFile, agent.State()); err != nil {
			logger.Errorf("state: %v", err)
		}
	}()

	if err := agent.Load(ctx); err != nil {
		logger.Errorf("load: %v", err)
		os.Exit(1)
	}
	if *openID != "" {
		if err := agent.Open(ctx, *openID); err != nil {
			logger.Errorf("open: %v", err)
		}
	}

	go follow(ctx, api, agent)

	var deckHandle swipe.Handle
	unmount := agent.Deck().Mount(&deckHandle)
	defer unmount()

	groups := client.NewSearcher(api.SearchGroups)
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := run(ctx, cfg.UserID, agent, &deckHandle, groups, strings.TrimSpace(line)); err != nil {
				logger.Errorf("%v", err)
			}
		}
	}
}

// follow держит живую ленту открытой и переподключается после обрыва, перечитывая состояние.
func follow(ctx context.Context, api *client.Client, agent *headless.Agent) {
	backoff := time.Second
	for {
		live, err := api.Dial(ctx, func(ev client.Event) { agent.Handle(ctx, ev) })
		if err == nil {
			backoff = time.Second
			logger.Info("live feed connected")
			<-live.Done()
			if err := live.Err(); err != nil {
				logger.Errorf("live feed: %v", err)
			}
		} else {
			logger.Errorf("live dial: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
		if err := agent.Load(ctx); err != nil {
			logger.Errorf("reload: %v", err)
		}
	}
}

func run(ctx context.Context, me string, agent *headless.Agent, deck *swipe.Handle, groups *client.Searcher[[]model.Group], line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		agent.Keystroke(ctx)
		_, err := agent.Send(ctx, client.SendInput{Text: line})
		return err
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/list":
		snap := agent.Snapshot()
		for _, m := range snap.New {
			fmt.Printf("new   %s %s\n", m.ID, m.Counterpart(me).Name)
		}
		for _, m := range snap.Conversations {
			fmt.Printf("chat  %s %s %q unread=%d\n", m.ID, m.Counterpart(me).Name, m.LastMessage, m.UnreadCount[me])
		}
		for _, m := range snap.Unmatched {
			fmt.Printf("gone  %s\n", m.ID)
		}
	case "/open":
		return agent.Open(ctx, arg)
	case "/close":
		agent.CloseConversation()
	case "/show":
		hl := agent.Highlighted()
		for _, it := range agent.Items() {
			mark := " "
			if it.ID() == hl {
				mark = "*"
			}
			switch it.Kind {
			case timeline.KindMessage:
				m := it.Message
				quote := ""
				if m.ReplyTo != nil {
					quote = fmt.Sprintf(" > [%s] %q", m.ReplyTo.ID, m.ReplyTo.Text)
				}
				fmt.Printf("%s msg  %s %s: %q%s\n", mark, m.ID, m.SenderID, m.Text, quote)
			case timeline.KindDateRequest:
				d := it.DateRequest
				canRespond, canCancel := agent.DateActions(d)
				var actions []string
				if canRespond {
					actions = append(actions, "/accept", "/decline")
				}
				if canCancel {
					actions = append(actions, "/cancel")
				}
				fmt.Printf("%s date %s %q %s %s %s [%s] %s\n", mark, d.ID, d.Title, d.Date, d.Time, d.Location, d.Status, strings.Join(actions, " "))
			}
		}
	case "/jump":
		idx, err := agent.JumpTo(arg)
		if err != nil {
			return err
		}
		fmt.Printf("message %s at #%d\n", arg, idx)
	case "/reply":
		id, text, _ := strings.Cut(arg, " ")
		_, err := agent.Reply(ctx, id, strings.TrimSpace(text))
		return err
	case "/edit":
		id, text, _ := strings.Cut(arg, " ")
		_, err := agent.Edit(ctx, id, strings.TrimSpace(text))
		return err
	case "/delete":
		return agent.Delete(ctx, arg)
	case "/cancel":
		_, err := agent.CancelDate(ctx, arg)
		return err
	case "/unmatch":
		return agent.Unmatch(ctx)
	case "/date":
		parts := strings.Split(arg, ";")
		for len(parts) < 4 {
			parts = append(parts, "")
		}
		_, err := agent.ProposeDate(ctx, daterequest.Draft{Title: parts[0], Date: parts[1], Time: parts[2], Location: parts[3]})
		return err
	case "/accept":
		_, err := agent.RespondDate(ctx, arg, model.DateStatusAccepted)
		return err
	case "/decline":
		_, err := agent.RespondDate(ctx, arg, model.DateStatusDeclined)
		return err
	case "/call":
		_, err := agent.Call(ctx)
		return err
	case "/hangup":
		return agent.Hangup(ctx)
	case "/mute", "/unmute":
		return agent.SetMuted(cmd == "/mute")
	case "/like", "/pass":
		agent.Deck().Push(arg)
		dir := swipe.Left
		if cmd == "/like" {
			dir = swipe.Right
		}
		if !deck.Trigger(dir) {
			return errors.New("deck is not mounted")
		}
	case "/search":
		go func() {
			found, err := groups.Search(ctx, arg)
			if errors.Is(err, client.ErrSuperseded) {
				return
			}
			if err != nil {
				logger.Errorf("search: %v", err)
				return
			}
			for _, g := range found {
				fmt.Printf("group %s %s (%d)\n", g.ID, g.Name, len(g.Members))
			}
		}()
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
	return nil
}
