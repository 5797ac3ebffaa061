package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/weaveframe/weave/pkg/element"
	"github.com/weaveframe/weave/pkg/session"
	"github.com/weaveframe/weave/pkg/weaveerr"
	"github.com/weaveframe/weave/pkg/wire"
)

type fakeChannel struct {
	sent []any
}

func (c *fakeChannel) Send(msg any) error { c.sent = append(c.sent, msg); return nil }
func (c *fakeChannel) Close() error       { return nil }

// textElement is a fundamental leaf used as a high-level element's build
// output.
func newTextElement(host element.Host, content string) *element.Base {
	b := element.NewBase("Text", "", element.KindFundamental, true, host, []string{"content"})
	b.SetInternal("content", content)
	b.FinishConstruction()
	return b
}

// appRoot is a minimal high-level element whose Build() returns a single
// Text child carrying its own "label" property.
type appRoot struct {
	*element.Base
	host element.Host
}

func newAppRoot(host element.Host, label string) *appRoot {
	b := element.NewBase("App", "", element.KindHighLevel, false, host, []string{"label"})
	b.SetInternal("label", label)
	b.FinishConstruction()
	return &appRoot{Base: b, host: host}
}

func (a *appRoot) Build() element.Element {
	return newTextElement(a.host, a.Get("label").(string))
}

func TestScheduler_RunPass_BuildsHighLevelRootAndSendsDelta(t *testing.T) {
	ch := &fakeChannel{}
	sess := session.New(ch)
	root := newAppRoot(sess, "hello")
	sess.SetRoot(root)

	sc := &Scheduler{Session: sess}

	if err := sc.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	if root.Data() == nil || root.Data().Root == nil {
		t.Fatalf("expected root's BuildData populated after RunPass")
	}
	if root.Data().Root.TypeName() != "Text" {
		t.Fatalf("built root = %q, want Text", root.Data().Root.TypeName())
	}
	if len(ch.sent) == 0 {
		t.Fatalf("expected a delta sent over the channel")
	}
	msg, ok := ch.sent[0].(wire.UpdateComponentStates)
	if !ok {
		t.Fatalf("sent message type = %T, want wire.UpdateComponentStates", ch.sent[0])
	}
	if len(msg.DeltaStates) == 0 {
		t.Fatalf("expected at least one element state in the delta")
	}
}

func TestScheduler_RunPass_SecondPassOnlyRebuildsWhenDirty(t *testing.T) {
	ch := &fakeChannel{}
	sess := session.New(ch)
	root := newAppRoot(sess, "v1")
	sess.SetRoot(root)
	sc := &Scheduler{Session: sess}

	if err := sc.RunPass(context.Background()); err != nil {
		t.Fatalf("first RunPass: %v", err)
	}
	sentAfterFirst := len(ch.sent)

	// Nothing changed; a second pass should have nothing to build or send.
	if err := sc.RunPass(context.Background()); err != nil {
		t.Fatalf("second RunPass: %v", err)
	}
	if len(ch.sent) != sentAfterFirst {
		t.Fatalf("expected no additional sends on an idle pass, got %d new", len(ch.sent)-sentAfterFirst)
	}

	// Changing the root's own property should require and produce a rebuild.
	if err := root.Set("label", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := sc.RunPass(context.Background()); err != nil {
		t.Fatalf("third RunPass: %v", err)
	}
	if len(ch.sent) <= sentAfterFirst {
		t.Fatalf("expected a new delta after dirtying the root's label")
	}
	if root.Data().Root.Peek("content") != "v2" {
		t.Fatalf("rebuilt content = %v, want v2", root.Data().Root.Peek("content"))
	}
}

func TestScheduler_RunCycle_RecursionGuardTrips(t *testing.T) {
	sess := session.New(&fakeChannel{})
	root := newAppRoot(sess, "x")
	sess.SetRoot(root)
	sc := &Scheduler{Session: sess}

	buildCounts := map[uint64]int{root.ID(): maxBuildsPerElement}
	sess.MarkCreated(root.ID())
	sess.RequireRefresh()

	_, _, _, _, err := sc.runCycle(context.Background(), buildCounts)
	if !errors.Is(err, weaveerr.ErrRecursionLimit) {
		t.Fatalf("runCycle err = %v, want ErrRecursionLimit", err)
	}
}

func TestScheduler_Order_ParentFirstAndDefersUnreachable(t *testing.T) {
	sess := session.New(&fakeChannel{})
	root := newAppRoot(sess, "root")
	sess.SetRoot(root)
	sc := &Scheduler{Session: sess}

	child := newTextElement(sess, "child")
	child.SetParent(root)
	grandchild := newTextElement(sess, "grandchild")
	grandchild.SetParent(child)

	orphan := newTextElement(sess, "orphan") // parent left nil: unreachable from root

	ordered, deferred := sc.order([]element.Element{grandchild, root, child, orphan})

	if len(deferred) != 1 || deferred[0].ID() != orphan.ID() {
		t.Fatalf("deferred = %v, want [orphan]", deferred)
	}
	if len(ordered) != 3 {
		t.Fatalf("ordered = %v, want 3 elements", ordered)
	}
	pos := func(id uint64) int {
		for i, e := range ordered {
			if e.ID() == id {
				return i
			}
		}
		return -1
	}
	if pos(root.ID()) > pos(child.ID()) || pos(child.ID()) > pos(grandchild.ID()) {
		t.Fatalf("expected parent-first order, got %v", ordered)
	}
}
