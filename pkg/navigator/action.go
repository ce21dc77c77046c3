package navigator

import (
	"errors"
	"fmt"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrMissingID         = errors.New("missing entity id")
)

// Op names a navigation operation.
type Op string

const (
	OpPushList              Op = "push_list"
	OpPushListItem          Op = "push_list_item"
	OpPushRelatedEntity     Op = "push_related_entity"
	OpPop                   Op = "pop"
	OpBase                  Op = "base"
	OpClear                 Op = "clear"
	OpReset                 Op = "reset"
	OpResetPage             Op = "reset_page"
	OpRemoveSidePanelParams Op = "remove_side_panel_params"
	OpSkim                  Op = "skim"
	OpSetSearch             Op = "set_search"
	OpClearSearch           Op = "clear_search"
	OpSetSort               Op = "set_sort"
	OpClearSort             Op = "clear_sort"
	OpSetPage               Op = "set_page"
	OpClearPage             Op = "clear_page"
)

// Ops lists every supported operation.
var Ops = []Op{
	OpPushList, OpPushListItem, OpPushRelatedEntity,
	OpPop, OpBase, OpClear, OpReset, OpResetPage,
	OpRemoveSidePanelParams, OpSkim,
	OpSetSearch, OpClearSearch, OpSetSort, OpClearSort, OpSetPage, OpClearPage,
}

// Action is one state-machine operation with its arguments. Fields not used
// by Op are ignored.
type Action struct {
	Op      Op              `json:"op"`
	Type    entity.Type     `json:"type,omitempty"`
	ID      string          `json:"id,omitempty"`
	UseCase entity.UseCase  `json:"use_case,omitempty"`
	Search  workflow.Search `json:"search,omitempty"`
	Sort    workflow.Sort   `json:"sort,omitempty"`
	Page    int             `json:"page,omitempty"`
}

// Apply runs a against s. Entity types are checked against the relationship
// graph of the use case the result will live in.
func (a Action) Apply(s workflow.State) (workflow.State, error) {
	switch a.Op {
	case OpPushList:
		if err := checkType(s.UseCase(), a.Type); err != nil {
			return s, err
		}
		return s.PushList(a.Type), nil
	case OpPushListItem:
		if a.ID == "" {
			return s, fmt.Errorf("%w: %s", ErrMissingID, a.Op)
		}
		return s.PushListItem(a.ID), nil
	case OpPushRelatedEntity:
		if err := checkType(s.UseCase(), a.Type); err != nil {
			return s, err
		}
		if a.ID == "" {
			return s, fmt.Errorf("%w: %s", ErrMissingID, a.Op)
		}
		return s.PushRelatedEntity(a.Type, a.ID), nil
	case OpPop:
		return s.Pop(), nil
	case OpBase:
		return s.Base(), nil
	case OpClear:
		return s.Clear(), nil
	case OpReset:
		uc := a.UseCase
		if uc == "" {
			uc = s.UseCase()
		}
		if err := checkType(uc, a.Type); err != nil {
			return s, err
		}
		return s.Reset(uc, a.Type, a.ID), nil
	case OpResetPage:
		if err := checkType(s.UseCase(), a.Type); err != nil {
			return s, err
		}
		return s.ResetPage(a.Type, a.ID), nil
	case OpRemoveSidePanelParams:
		return s.RemoveSidePanelParams(), nil
	case OpSkim:
		return s.SkimmedStack(), nil
	case OpSetSearch:
		return s.SetSearch(a.Search), nil
	case OpClearSearch:
		return s.ClearSearch(), nil
	case OpSetSort:
		return s.SetSort(a.Sort), nil
	case OpClearSort:
		return s.ClearSort(), nil
	case OpSetPage:
		if a.Page < 0 {
			return s, fmt.Errorf("%w: negative page %d", ErrUnknownAction, a.Page)
		}
		return s.SetPage(a.Page), nil
	case OpClearPage:
		return s.ClearPage(), nil
	}
	return s, fmt.Errorf("%w: %q", ErrUnknownAction, a.Op)
}

// checkType rejects types the use case's graph does not declare, which
// would otherwise panic inside the trim rules.
func checkType(uc entity.UseCase, t entity.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntityType, t)
	}
	g, ok := graph.ForUseCase(uc)
	if ok && !g.Has(t) {
		return fmt.Errorf("%w: %s is not part of %s", ErrInvalidEntityType, t, uc)
	}
	return nil
}

// expectedLen is the stack depth a push would reach without trimming.
func expectedLen(a Action, before workflow.State) (int, bool) {
	n := before.Len()
	switch a.Op {
	case OpPushList:
		if cur, ok := before.CurrentEntity(); ok && cur.IsList() {
			return n, true
		}
		return n + 1, true
	case OpPushRelatedEntity:
		return n + 1, true
	}
	return 0, false
}
