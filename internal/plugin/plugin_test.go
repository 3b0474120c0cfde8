package plugin

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"whatsapp-bot/internal/message"
	"whatsapp-bot/internal/session"
	"whatsapp-bot/internal/whatsapp"
	"whatsapp-bot/internal/whatsapp/whatsapptest"
)

var (
	botJID  = types.NewJID("10000000000", types.DefaultUserServer)
	userJID = types.NewJID("15550001111", types.DefaultUserServer)
)

type testCommand struct {
	name    string
	aliases []string
	calls   []string
	args    [][]string
	run     func(ctx context.Context, m *message.Message) error
}

func (c *testCommand) Name() string      { return c.name }
func (c *testCommand) Aliases() []string { return c.aliases }

func (c *testCommand) Execute(ctx context.Context, _ whatsapp.Conn, m *message.Message, args []string) error {
	c.calls = append(c.calls, m.Body)
	c.args = append(c.args, args)
	if c.run != nil {
		return c.run(ctx, m)
	}
	return nil
}

type testObserver struct {
	name string
	log  *[]string
	err  error
}

func (o *testObserver) Name() string { return o.name }

func (o *testObserver) OnMessage(_ context.Context, _ whatsapp.Conn, m *message.Message) error {
	*o.log = append(*o.log, o.name+":"+m.Body)
	return o.err
}

type nameOnly struct{ name string }

func (n nameOnly) Name() string { return n.name }

func textEvent(chat types.JID, body string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: userJID},
			ID:            "IN1",
		},
		Message: &waE2E.Message{Conversation: proto.String(body)},
	}
}

func newDispatcher(t *testing.T, prefix string, plugins ...Plugin) (*Dispatcher, *whatsapptest.Conn) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(plugins...)
	return NewDispatcher(reg, session.New(prefix, nil)), whatsapptest.NewConn(botJID)
}

func TestRegisterSkipsInvalid(t *testing.T) {
	reg := NewRegistry()
	n := reg.Register(nil, nameOnly{name: "bare"}, &testCommand{name: ""}, &testCommand{name: "ok"})
	if n != 1 {
		t.Errorf("expected 1 accepted plugin, got %d", n)
	}
	if _, ok := reg.Lookup("ok"); !ok {
		t.Error("valid plugin should be registered")
	}
	if _, ok := reg.Lookup("bare"); ok {
		t.Error("plugin without capability should be skipped")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(&testCommand{name: "x"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	var log []string
	if err := Validate(&testObserver{name: "o", log: &log}); err != nil {
		t.Errorf("observer-only plugin should be valid: %v", err)
	}
	if err := Validate(&testCommand{name: "  "}); err == nil {
		t.Error("blank name must be rejected")
	}
}

func TestRegistryNameCollisionLastWins(t *testing.T) {
	first := &testCommand{name: "Echo"}
	second := &testCommand{name: "echo"}
	reg := NewRegistry()
	reg.Register(first, second)

	cmd, _ := reg.Lookup("ECHO")
	if cmd != Command(second) {
		t.Error("later registration should win")
	}
	cmds := reg.Commands()
	if len(cmds) != 1 || cmds[0].Name != "echo" {
		t.Errorf("expected single menu entry, got %+v", cmds)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		body, prefix string
		name         string
		args         []string
		ok           bool
	}{
		{".ping", ".", "ping", []string{}, true},
		{".SetPrefix  !  extra", ".", "setprefix", []string{"!", "extra"}, true},
		{". ping", ".", "ping", []string{}, true},
		{"ping", ".", "", nil, false},
		{".", ".", "", nil, false},
		{"!!go now", "!!", "go", []string{"now"}, true},
		{"hello", "", "", nil, false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.body, tt.prefix)
		if ok != tt.ok || name != tt.name {
			t.Errorf("ParseCommand(%q, %q) = %q, %v", tt.body, tt.prefix, name, ok)
			continue
		}
		if ok && !reflect.DeepEqual(args, tt.args) {
			t.Errorf("ParseCommand(%q) args = %#v, want %#v", tt.body, args, tt.args)
		}
	}
}

func TestDispatchPingEndToEnd(t *testing.T) {
	ping := &testCommand{
		name:    "ping",
		aliases: []string{"speed"},
		run: func(ctx context.Context, m *message.Message) error {
			return m.Reply(ctx, "pong")
		},
	}
	other := &testCommand{name: "menu"}
	d, conn := newDispatcher(t, "/", ping, other)

	d.Dispatch(context.Background(), conn, textEvent(userJID, "/ping"))

	sent := conn.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(sent))
	}
	if sent[0].To != userJID || whatsapptest.TextOf(sent[0].Message) != "pong" {
		t.Errorf("unexpected reply %+v", sent[0])
	}
	if len(ping.calls) != 1 {
		t.Errorf("ping should run once, ran %d", len(ping.calls))
	}
	if len(other.calls) != 0 {
		t.Error("no other command may run")
	}
}

func TestDispatchAliasesRouteToSameCommand(t *testing.T) {
	ping := &testCommand{name: "ping", aliases: []string{"speed", "Latency"}}
	d, conn := newDispatcher(t, ".", ping)

	for _, body := range []string{".ping", ".speed a b", ".LATENCY"} {
		d.Dispatch(context.Background(), conn, textEvent(userJID, body))
	}
	if len(ping.calls) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(ping.calls))
	}
	if !reflect.DeepEqual(ping.args[1], []string{"a", "b"}) {
		t.Errorf("unexpected args %v", ping.args[1])
	}
}

func TestDispatchExecuteFailureDoesNotStopObservers(t *testing.T) {
	var log []string
	failing := &testCommand{name: "boom", run: func(context.Context, *message.Message) error {
		return errors.New("database exploded")
	}}
	obs := &testObserver{name: "audit", log: &log}
	d, conn := newDispatcher(t, ".", failing, obs)

	d.Dispatch(context.Background(), conn, textEvent(userJID, ".boom"))

	if len(log) != 1 || log[0] != "audit:.boom" {
		t.Errorf("observer should still run, log=%v", log)
	}
	sent := conn.Sent()
	if len(sent) != 1 || whatsapptest.TextOf(sent[0].Message) != FailureReply {
		t.Fatalf("expected generic failure reply, got %+v", sent)
	}
	if got := sent[0].Message.GetExtendedTextMessage().GetContextInfo().GetStanzaID(); got != "IN1" {
		t.Errorf("failure reply should quote the command message, got stanza %q", got)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	var log []string
	panicking := &testCommand{name: "crash", run: func(context.Context, *message.Message) error {
		panic("nil map")
	}}
	first := &testObserver{name: "first", log: &log, err: errors.New("ignored")}
	second := &testObserver{name: "second", log: &log}
	d, conn := newDispatcher(t, ".", panicking, first, second)

	d.Dispatch(context.Background(), conn, textEvent(userJID, ".crash"))

	if !reflect.DeepEqual(log, []string{"first:.crash", "second:.crash"}) {
		t.Errorf("observers should run in registration order, got %v", log)
	}
	if len(conn.Sent()) != 1 {
		t.Errorf("expected one failure reply, got %d", len(conn.Sent()))
	}
}

func TestDispatchUnknownCommandIsIgnored(t *testing.T) {
	var log []string
	d, conn := newDispatcher(t, ".", &testObserver{name: "o", log: &log})
	d.Dispatch(context.Background(), conn, textEvent(userJID, ".nope"))
	if len(conn.Sent()) != 0 {
		t.Error("unknown command must not reply")
	}
	if len(log) != 1 {
		t.Error("observers still see the message")
	}
}

func TestDispatchUsesCurrentPrefix(t *testing.T) {
	ping := &testCommand{name: "ping"}
	reg := NewRegistry()
	reg.Register(ping)
	sess := session.New(".", nil)
	d := NewDispatcher(reg, sess)
	conn := whatsapptest.NewConn(botJID)

	if err := sess.SetPrefix(context.Background(), "!"); err != nil {
		t.Fatal(err)
	}
	d.Dispatch(context.Background(), conn, textEvent(userJID, ".ping"))
	d.Dispatch(context.Background(), conn, textEvent(userJID, "!ping"))
	if len(ping.calls) != 1 || ping.calls[0] != "!ping" {
		t.Errorf("only the new prefix should match, calls=%v", ping.calls)
	}
}

func TestDispatchStatusBroadcast(t *testing.T) {
	var log []string
	ping := &testCommand{name: "ping"}
	d, conn := newDispatcher(t, ".", ping, &testObserver{name: "o", log: &log})

	d.Dispatch(context.Background(), conn, textEvent(types.StatusBroadcastJID, ".ping"))

	reads := conn.Reads()
	if len(reads) != 1 || reads[0].Chat != types.StatusBroadcastJID || reads[0].IDs[0] != "IN1" || reads[0].Sender != userJID {
		t.Fatalf("expected status to be marked read, got %+v", reads)
	}
	if len(ping.calls) != 0 || len(log) != 0 {
		t.Error("status updates must not reach plugins")
	}
}

func TestDispatchIgnoresEmptyEvents(t *testing.T) {
	ping := &testCommand{name: "ping"}
	d, conn := newDispatcher(t, ".", ping)
	d.Dispatch(context.Background(), conn, &events.Message{Info: textEvent(userJID, "").Info})
	d.Dispatch(context.Background(), conn, nil)
	if len(ping.calls) != 0 || len(conn.Sent()) != 0 {
		t.Error("empty events must be ignored")
	}
}
