package view

// Overlay is whatever floats above the message list. Exactly one is active at a time.
type Overlay interface {
	overlay()
}

// ModalKind names a modal dialog
type ModalKind string

const (
	ModalDeleteConfirm ModalKind = "delete"
	ModalAbout         ModalKind = "about"
)

// NoOverlay means nothing is open
type NoOverlay struct{}

// ContextMenu is the per-message action menu
type ContextMenu struct {
	X, Y   int
	Target int64
}

// Modal is a dialog; Target is zero for modals without a message
type Modal struct {
	Kind   ModalKind
	Target int64
}

// ReactionPicker offers reactions for a message
type ReactionPicker struct {
	Target int64
}

func (NoOverlay) overlay()      {}
func (ContextMenu) overlay()    {}
func (Modal) overlay()          {}
func (ReactionPicker) overlay() {}

// MenuAction is an entry of the context menu
type MenuAction string

const (
	ActionReply   MenuAction = "reply"
	ActionEdit    MenuAction = "edit"
	ActionReact   MenuAction = "react"
	ActionStar    MenuAction = "star"
	ActionForward MenuAction = "forward"
	ActionDelete  MenuAction = "delete"
)

// MenuActions lists the context menu entries in display order
var MenuActions = []MenuAction{ActionReply, ActionEdit, ActionReact, ActionStar, ActionForward, ActionDelete}

// QuickReactions are offered by the reaction picker
var QuickReactions = []string{"👍", "❤️", "😂", "😮", "😢", "🙏"}

// OverlayState holds the active overlay. Transitions replace it wholesale.
type OverlayState struct {
	current Overlay
}

// NewOverlayState starts with nothing open
func NewOverlayState() *OverlayState {
	return &OverlayState{current: NoOverlay{}}
}

// Current returns the active overlay
func (o *OverlayState) Current() Overlay {
	return o.current
}

// IsOpen reports whether anything is showing
func (o *OverlayState) IsOpen() bool {
	_, none := o.current.(NoOverlay)
	return !none
}

// OpenContextMenu shows the action menu for target at x, y
func (o *OverlayState) OpenContextMenu(x, y int, target int64) {
	o.current = ContextMenu{X: x, Y: y, Target: target}
}

// OpenModal shows a modal dialog
func (o *OverlayState) OpenModal(kind ModalKind, target int64) {
	o.current = Modal{Kind: kind, Target: target}
}

// OpenReactionPicker shows reaction choices for target
func (o *OverlayState) OpenReactionPicker(target int64) {
	o.current = ReactionPicker{Target: target}
}

// Dismiss closes whatever is open
func (o *OverlayState) Dismiss() {
	o.current = NoOverlay{}
}

// Choose applies a context menu action. Delete and react move to their own overlay; every
// other action closes the menu. It reports the target and false if no menu was open.
func (o *OverlayState) Choose(action MenuAction) (int64, bool) {
	menu, ok := o.current.(ContextMenu)
	if !ok {
		return 0, false
	}
	switch action {
	case ActionDelete:
		o.OpenModal(ModalDeleteConfirm, menu.Target)
	case ActionReact:
		o.OpenReactionPicker(menu.Target)
	default:
		o.Dismiss()
	}
	return menu.Target, true
}

// ConfirmDelete closes a delete confirmation and returns the message to delete
func (o *OverlayState) ConfirmDelete() (int64, bool) {
	modal, ok := o.current.(Modal)
	if !ok || modal.Kind != ModalDeleteConfirm {
		return 0, false
	}
	o.Dismiss()
	return modal.Target, true
}

// PickReaction closes the picker and returns the target and chosen emoji.
// index is 1-based into QuickReactions.
func (o *OverlayState) PickReaction(index int) (int64, string, bool) {
	picker, ok := o.current.(ReactionPicker)
	if !ok || index < 1 || index > len(QuickReactions) {
		return 0, "", false
	}
	o.Dismiss()
	return picker.Target, QuickReactions[index-1], true
}
