package ecm

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FirstVersionLabel is the label of the first auto-labelled checkin.
const FirstVersionLabel = "1.0"

// versioner runs the checkout/checkin protocol on versionable nodes.
//
// A node is either checked in (the default) or checked out. Writes to a
// versionable node happen between beginEdit and commit; commit appends a
// VersionRecord whose properties become the node's baseline.
type versioner struct {
	logger *slog.Logger
}

// beginEdit checks node out. It is a no-op for a node that is already
// checked out.
func (v *versioner) beginEdit(ctx context.Context, sess Session, node *Node) error {
	if !node.IsVersionable() {
		return ErrNotVersionable
	}
	if node.CheckedOut {
		return nil
	}
	node.CheckedOut = true
	return sess.UpdateNode(ctx, node)
}

// commit writes props onto the checked-out node, checks it in and appends a
// version record labelled label, or the next free label when label is empty,
// equal to the current baseline or already taken.
func (v *versioner) commit(ctx context.Context, sess Session, node *Node, props Properties, label string) (*VersionRecord, error) {
	if !node.IsVersionable() {
		return nil, ErrNotVersionable
	}
	if !node.CheckedOut {
		return nil, ErrNotCheckedOut
	}

	history, err := sess.ListVersions(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	// the current baseline label is what a re-saved item carries back in
	if label == "" || label == node.BaseVersion {
		label = nextLabel(history)
	} else if hasLabel(history, label) {
		next := nextLabel(history)
		v.logger.WarnContext(ctx, "version label already used, using next label",
			"path", node.Path, "label", label, "next", next)
		label = next
	}

	rec := &VersionRecord{
		Label:      label,
		Path:       node.Path,
		Properties: props.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := sess.AppendVersion(ctx, node.ID, rec); err != nil {
		return nil, err
	}

	node.Properties = props.Clone()
	node.CheckedOut = false
	node.BaseVersion = label
	if err := sess.UpdateNode(ctx, node); err != nil {
		return nil, err
	}
	return rec, nil
}

// listVersions returns the history of node, oldest first.
func (v *versioner) listVersions(ctx context.Context, sess Session, node *Node) ([]*VersionRecord, error) {
	if !node.IsVersionable() {
		return nil, ErrNotVersionable
	}
	history, err := sess.ListVersions(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	for _, rec := range history {
		rec.Path = node.Path
	}
	return history, nil
}

// deleteVersion removes the record labelled label and returns how many
// records were removed. Removing the baseline first restores the preceding
// record onto the node. The only remaining record cannot be removed.
func (v *versioner) deleteVersion(ctx context.Context, sess Session, node *Node, label string) (int, error) {
	if !node.IsVersionable() {
		return 0, ErrNotVersionable
	}
	history, err := sess.ListVersions(ctx, node.ID)
	if err != nil {
		return 0, err
	}

	idx := slices.IndexFunc(history, func(r *VersionRecord) bool { return r.Label == label })
	if idx < 0 {
		return 0, nil
	}
	if len(history) == 1 {
		return 0, ErrInvalidVersionDeletion
	}

	if idx == len(history)-1 {
		prev := history[idx-1]
		v.logger.DebugContext(ctx, "restoring previous version as baseline",
			"path", node.Path, "deleted", label, "restored", prev.Label)
		node.Properties = prev.Properties.Clone()
		node.BaseVersion = prev.Label
		node.CheckedOut = false
		if err := sess.UpdateNode(ctx, node); err != nil {
			return 0, err
		}
	}

	return sess.RemoveVersion(ctx, node.ID, label)
}

func hasLabel(history []*VersionRecord, label string) bool {
	return slices.ContainsFunc(history, func(r *VersionRecord) bool { return r.Label == label })
}

// nextLabel returns the label following the baseline that is not yet in
// history.
func nextLabel(history []*VersionRecord) string {
	if len(history) == 0 {
		return FirstVersionLabel
	}
	label := incrementLabel(history[len(history)-1].Label)
	for hasLabel(history, label) {
		label = incrementLabel(label)
	}
	return label
}

// incrementLabel bumps the last numeric segment of a dotted label:
// "1.0" -> "1.1", "2.3.9" -> "2.3.10". Non-numeric labels get ".1" appended.
func incrementLabel(label string) string {
	i := strings.LastIndexByte(label, '.')
	last := label[i+1:]
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 {
		return label + ".1"
	}
	return label[:i+1] + strconv.Itoa(n+1)
}
