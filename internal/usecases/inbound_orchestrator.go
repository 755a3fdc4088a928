package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/interfaces"
	"github.com/businessly/businessly/internal/logger"
	"github.com/businessly/businessly/internal/textutil"
)

const (
	// ConfidenceThreshold is the lowest confidence at which a draft is sent.
	ConfidenceThreshold = 0.6
	// HistoryWindow is how many prior messages are given to the engine.
	HistoryWindow = 20

	HandoffNotice = "Ваш вопрос передан менеджеру. Он ответит вам в ближайшее время."

	generationTimeout = 60 * time.Second
)

// Ack is the body returned to the webhook caller.
type Ack struct {
	OK bool `json:"ok"`
}

// Outcome records how a unit of work ended.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeRecorded
	OutcomeHandedOffOnError
	OutcomeHandedOffLowConfidence
	OutcomeReplied
	OutcomeDeliveryFailed
	OutcomePreempted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeHandedOffOnError:
		return "handed_off_on_error"
	case OutcomeHandedOffLowConfidence:
		return "handed_off_low_confidence"
	case OutcomeReplied:
		return "replied"
	case OutcomeDeliveryFailed:
		return "delivery_failed"
	case OutcomePreempted:
		return "preempted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

type OrchestratorDeps struct {
	Bots          interfaces.BotDirectory
	Conversations interfaces.ConversationStore
	Messages      interfaces.MessageLog
	Channel       interfaces.ChannelAdapter
	Engine        interfaces.ResponseEngine
	Dispatcher    interfaces.Dispatcher
	Locker        interfaces.ConversationLocker
	Logger        *slog.Logger
}

// InboundOrchestrator accepts webhook deliveries and decides, per customer
// message, whether the bot answers or the conversation goes to the owner.
type InboundOrchestrator struct {
	bots          interfaces.BotDirectory
	conversations interfaces.ConversationStore
	messages      interfaces.MessageLog
	channel       interfaces.ChannelAdapter
	engine        interfaces.ResponseEngine
	dispatcher    interfaces.Dispatcher
	locker        interfaces.ConversationLocker
	log           *slog.Logger
	now           func() time.Time
}

func NewInboundOrchestrator(deps OrchestratorDeps) *InboundOrchestrator {
	return &InboundOrchestrator{
		bots:          deps.Bots,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		channel:       deps.Channel,
		engine:        deps.Engine,
		dispatcher:    deps.Dispatcher,
		locker:        deps.Locker,
		log:           logger.Component(deps.Logger, "orchestrator"),
		now:           time.Now,
	}
}

// Handle acknowledges a raw webhook body and queues any customer text it
// carries. Only a body that is not JSON produces an error. The event keeps
// the request id found in ctx so job logs line up with the request log.
func (o *InboundOrchestrator) Handle(ctx context.Context, raw []byte, botToken string) (Ack, error) {
	evt, ok, err := ParseInboundEvent(raw, botToken, logger.RequestID(ctx), o.now())
	if err != nil {
		return Ack{}, err
	}
	if !ok {
		return Ack{OK: true}, nil
	}

	if err := o.dispatcher.Dispatch(ctx, evt); err != nil {
		o.log.Error("dispatch inbound event",
			slog.String("request_id", evt.RequestID),
			slog.Int64("chat_id", evt.ChatID),
			slog.Any("error", err))
	}
	return Ack{OK: true}, nil
}

// Process runs one unit of work to completion. Failures are logged and
// reflected in the conversation state, never returned.
func (o *InboundOrchestrator) Process(ctx context.Context, evt entities.InboundEvent) Outcome {
	log := o.log.With(slog.String("request_id", evt.RequestID), slog.Int64("chat_id", evt.ChatID))
	start := o.now()

	outcome, convID := o.process(ctx, evt, log)

	attrs := []any{
		slog.String("outcome", outcome.String()),
		slog.Duration("elapsed", o.now().Sub(start)),
	}
	if convID != 0 {
		attrs = append(attrs, slog.Int64("conversation_id", convID))
	}
	if outcome == OutcomeFailed || outcome == OutcomeDeliveryFailed {
		log.Warn("inbound processed", attrs...)
	} else {
		log.Info("inbound processed", attrs...)
	}
	return outcome
}

func (o *InboundOrchestrator) process(ctx context.Context, evt entities.InboundEvent, log *slog.Logger) (Outcome, int64) {
	bot, err := o.bots.FindByToken(ctx, evt.BotToken)
	if err != nil {
		log.Error("look up bot", slog.Any("error", err))
		return OutcomeFailed, 0
	}
	if bot == nil || !bot.IsActive {
		return OutcomeIgnored, 0
	}

	conv, created, err := o.conversations.ResolveOrCreate(ctx, bot.ID, evt.ChatID, evt.From)
	if err != nil {
		log.Error("resolve conversation", slog.Int64("bot_id", bot.ID), slog.Any("error", err))
		return OutcomeFailed, 0
	}
	if created {
		log.Info("conversation started", slog.Int64("bot_id", bot.ID), slog.Int64("conversation_id", conv.ID))
	}

	remoteID := evt.MessageID
	inbound := &entities.Message{
		ConversationID:    conv.ID,
		Origin:            entities.OriginCustomer,
		Content:           textutil.CleanText(evt.Text),
		TelegramMessageID: &remoteID,
	}
	if err := o.messages.Append(ctx, inbound); err != nil {
		log.Error("persist customer message", slog.Any("error", err))
		return OutcomeFailed, conv.ID
	}

	unlock, err := o.locker.Lock(ctx, conv.ID)
	if err != nil {
		log.Error("lock conversation", slog.Any("error", err))
		return OutcomeFailed, conv.ID
	}
	defer unlock()

	mode, err := o.conversations.GetControlMode(ctx, conv.ID)
	if err != nil {
		log.Error("read control mode", slog.Any("error", err))
		return OutcomeFailed, conv.ID
	}
	if mode == entities.ControlManual {
		return OutcomeRecorded, conv.ID
	}

	if err := o.channel.SendComposing(ctx, bot.Token, evt.ChatID); err != nil {
		log.Debug("composing indicator", slog.Any("error", err))
	}

	history, err := o.history(ctx, conv.ID, inbound.ID)
	if err != nil {
		log.Error("load history", slog.Any("error", err))
		return OutcomeFailed, conv.ID
	}

	genCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	gen, err := o.engine.Generate(genCtx, entities.GenerationRequest{
		CustomerText:    inbound.Content,
		BusinessProfile: bot.BusinessDescription,
		History:         history,
	})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("generation abandoned", slog.Any("error", err))
			return OutcomeFailed, conv.ID
		}
		log.Warn("generation failed, handing off", slog.Any("error", err))
		o.handOff(ctx, conv.ID, log)
		return OutcomeHandedOffOnError, conv.ID
	}

	if gen.Confidence < ConfidenceThreshold {
		log.Info("low confidence, handing off", slog.Float64("confidence", gen.Confidence))
		if preempted := !o.handOff(ctx, conv.ID, log); preempted {
			return OutcomePreempted, conv.ID
		}
		if _, err := o.channel.SendMessage(ctx, bot.Token, evt.ChatID, HandoffNotice, 0); err != nil {
			log.Warn("send handoff notice", slog.Any("error", err))
		}
		return OutcomeHandedOffLowConfidence, conv.ID
	}

	// The owner may have taken over while the engine was busy.
	mode, err = o.conversations.GetControlMode(ctx, conv.ID)
	if err != nil {
		log.Error("re-read control mode", slog.Any("error", err))
		return OutcomeFailed, conv.ID
	}
	if mode == entities.ControlManual {
		return OutcomePreempted, conv.ID
	}

	delivery, err := o.channel.SendMessage(ctx, bot.Token, evt.ChatID, gen.Reply, 0)
	if err != nil {
		log.Warn("deliver reply", slog.Any("error", err))
		return OutcomeDeliveryFailed, conv.ID
	}

	reply := &entities.Message{
		ConversationID: conv.ID,
		Origin:         entities.OriginAssistant,
		Content:        gen.Reply,
	}
	if delivery != nil {
		id := delivery.MessageID
		reply.TelegramMessageID = &id
	}
	if err := o.messages.Append(ctx, reply); err != nil {
		log.Error("persist reply", slog.Any("error", err))
		return OutcomeFailed, conv.ID
	}
	return OutcomeReplied, conv.ID
}

// history returns up to HistoryWindow messages preceding the inbound one.
func (o *InboundOrchestrator) history(ctx context.Context, convID, inboundID int64) ([]entities.Message, error) {
	recent, err := o.messages.Recent(ctx, convID, HistoryWindow+1)
	if err != nil {
		return nil, err
	}
	out := make([]entities.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID == inboundID {
			continue
		}
		out = append(out, m)
	}
	if len(out) > HistoryWindow {
		out = out[len(out)-HistoryWindow:]
	}
	return out, nil
}

// handOff moves the conversation to the owner. It reports false only when the
// owner had already taken over, so nothing more should be said to the customer.
func (o *InboundOrchestrator) handOff(ctx context.Context, convID int64, log *slog.Logger) bool {
	changed, err := o.conversations.TransitionControlMode(ctx, convID, entities.ControlAutomated, entities.ControlManual)
	switch {
	case err != nil:
		log.Error("switch to manual", slog.Any("error", err))
		return true
	case changed:
		log.Info("conversation handed to owner")
	}
	return changed
}
