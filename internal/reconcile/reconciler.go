// Package reconcile turns a loosely persisted registration set into one consistent
// registration per student and call. A bad record is repaired or dropped; the pass
// never aborts.
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	"github.com/noah-isme/olympiad-registration-api/internal/registration"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

// namespace seeds the deterministic ids given to records persisted without one.
var namespace = uuid.MustParse("6f1c64f3-5a0b-4d8e-9a57-3b7c2f0d9e11")

// Placeholder texts for areas that no lookup table knows.
const (
	placeholderNameFormat  = "Área %s"
	placeholderDescription = "Área no encontrada"
)

// Options configures a Reconciler.
type Options struct {
	Orders registration.OrderPolicy
	Logger *zap.Logger
}

// Reconciler runs reconciliation passes. It holds no state between passes.
type Reconciler struct {
	orders registration.OrderPolicy
	logger *zap.Logger
}

// New constructs a Reconciler.
func New(opts Options) *Reconciler {
	if opts.Orders.IndividualTTL <= 0 {
		opts.Orders.IndividualTTL = registration.DefaultIndividualTTL
	}
	if opts.Orders.GroupTTL <= 0 {
		opts.Orders.GroupTTL = registration.DefaultGroupTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Reconciler{orders: opts.Orders, logger: opts.Logger}
}

type pass struct {
	r        *Reconciler
	calls    map[string]models.Call
	areas    map[string]models.Area
	report   Report
	resolved []resolvedRecord
}

type resolvedRecord struct {
	raw    RawRegistration
	call   models.Call
	legacy bool
}

type pairKey struct {
	studentID string
	callID    string
}

// Reconcile resolves, deduplicates and migrates in, returning one registration per
// (student, call) pair sorted by student then call.
func (r *Reconciler) Reconcile(in Input) *Result {
	p := &pass{
		r:     r,
		calls: make(map[string]models.Call, len(in.Calls)),
		areas: make(map[string]models.Area, len(in.Areas)),
	}
	for _, c := range in.Calls {
		p.calls[c.ID] = c
	}
	for _, a := range in.Areas {
		if _, exists := p.areas[a.ID]; !exists {
			p.areas[a.ID] = a
		}
	}
	p.report.Input = len(in.Registrations) + len(in.Legacy)

	for _, raw := range in.Registrations {
		p.admit(raw)
	}
	groups := p.group()
	p.migrateLegacy(in, groups)

	keys := make([]pairKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].studentID != keys[j].studentID {
			return lessID(keys[i].studentID, keys[j].studentID)
		}
		return lessID(keys[i].callID, keys[j].callID)
	})

	out := make([]models.Registration, 0, len(keys))
	for _, key := range keys {
		winner := p.pickLatest(key, groups[key])
		out = append(out, p.build(winner))
	}

	p.report.Output = len(out)
	if p.report.Dropped > 0 || p.report.Merged > 0 || p.report.Migrated > 0 {
		r.logger.Info("registrations reconciled",
			zap.Int("input", p.report.Input),
			zap.Int("output", p.report.Output),
			zap.Int("dropped", p.report.Dropped),
			zap.Int("merged", p.report.Merged),
			zap.Int("migrated", p.report.Migrated),
		)
	}
	return &Result{Registrations: out, Report: p.report}
}

// admit resolves the call of raw, dropping records that cannot stand on their own.
func (p *pass) admit(raw RawRegistration) bool {
	if raw.StudentID == "" {
		p.drop(raw, "", "registration has no student")
		return false
	}
	call, ok := p.calls[raw.CallID]
	if !ok {
		p.drop(raw, appErrors.ErrUnresolvableCall.Code, fmt.Sprintf("call %q not found", raw.CallID))
		return false
	}
	p.resolved = append(p.resolved, resolvedRecord{raw: raw, call: call})
	return true
}

func (p *pass) drop(raw RawRegistration, code, detail string) {
	p.report.Dropped++
	p.issue(Issue{RecordID: raw.ID, StudentID: raw.StudentID, CallID: raw.CallID, Action: ActionDropped, Code: code, Detail: detail})
	p.r.logger.Warn("dropping registration record",
		zap.String("record_id", raw.ID),
		zap.String("student_id", raw.StudentID),
		zap.String("call_id", raw.CallID),
		zap.String("reason", detail),
	)
}

func (p *pass) issue(i Issue) {
	p.report.Issues = append(p.report.Issues, i)
}

func (p *pass) group() map[pairKey][]resolvedRecord {
	groups := make(map[pairKey][]resolvedRecord)
	for _, rec := range p.resolved {
		key := pairKey{studentID: rec.raw.StudentID, callID: rec.call.ID}
		groups[key] = append(groups[key], rec)
	}
	return groups
}

// migrateLegacy adds a registration for each legacy selection whose student has none
// for the default call yet.
func (p *pass) migrateLegacy(in Input, groups map[pairKey][]resolvedRecord) {
	if len(in.Legacy) == 0 {
		return
	}
	call, ok := p.defaultCall(in)
	for _, legacy := range in.Legacy {
		raw := RawRegistration{
			StudentID:    legacy.StudentID,
			CreatedAt:    legacy.CreatedAt,
			PaymentOrder: legacy.PaymentOrder,
		}
		for _, id := range legacy.AreaIDs {
			raw.Areas = append(raw.Areas, RawArea{ID: id})
		}
		if !ok {
			p.drop(raw, appErrors.ErrUnresolvableCall.Code, "no default call for legacy selection")
			continue
		}
		if legacy.StudentID == "" {
			p.drop(raw, "", "legacy selection has no student")
			continue
		}
		raw.CallID = call.ID
		key := pairKey{studentID: legacy.StudentID, callID: call.ID}
		if existing, found := groups[key]; found && !existing[0].legacy {
			p.issue(Issue{StudentID: legacy.StudentID, CallID: call.ID, Action: ActionLegacySkipped, Detail: "student already has a registration for the call"})
			continue
		}
		raw.ID = uuid.NewSHA1(namespace, []byte("legacy:"+legacy.StudentID+":"+call.ID)).String()
		raw.Kind = models.OrderKindIndividual
		p.report.Migrated++
		p.issue(Issue{RecordID: raw.ID, StudentID: legacy.StudentID, CallID: call.ID, Action: ActionMigrated, Detail: fmt.Sprintf("migrated %d legacy areas", len(legacy.AreaIDs))})
		groups[key] = append(groups[key], resolvedRecord{raw: raw, call: call, legacy: true})
	}
}

// defaultCall is DefaultCallID when known, else the active call that started last.
func (p *pass) defaultCall(in Input) (models.Call, bool) {
	if in.DefaultCallID != "" {
		if c, ok := p.calls[in.DefaultCallID]; ok {
			return c, true
		}
	}
	var best models.Call
	found := false
	for _, c := range in.Calls {
		if !c.Active {
			continue
		}
		if !found || c.StartsAt.After(best.StartsAt) || (c.StartsAt.Equal(best.StartsAt) && lessID(best.ID, c.ID)) {
			best = c
			found = true
		}
	}
	return best, found
}

// pickLatest keeps the most recently created record; ties go to the greater id.
func (p *pass) pickLatest(key pairKey, records []resolvedRecord) resolvedRecord {
	best := 0
	for i := 1; i < len(records); i++ {
		if newer(records[i].raw, records[best].raw) {
			best = i
		}
	}
	winner := records[best]
	for i, rec := range records {
		if i == best {
			continue
		}
		p.report.Merged++
		p.issue(Issue{
			RecordID:  rec.raw.ID,
			StudentID: key.studentID,
			CallID:    key.callID,
			Action:    ActionMerged,
			Detail:    fmt.Sprintf("superseded by %s", winner.raw.ID),
		})
	}
	return winner
}

func newer(a, b RawRegistration) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return lessID(b.ID, a.ID)
}

// lessID is a total order on ids: integers first by value, then everything else lexically.
func lessID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if ai != bi {
			return ai < bi
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

func (p *pass) build(rec resolvedRecord) models.Registration {
	raw, call := rec.raw, rec.call
	reg := models.Registration{
		ID:        raw.ID,
		StudentID: raw.StudentID,
		CallID:    call.ID,
		Status:    raw.Status,
		Kind:      raw.Kind,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	if reg.ID == "" {
		reg.ID = uuid.NewSHA1(namespace, []byte("registration:"+raw.StudentID+":"+call.ID)).String()
	}
	if reg.Kind != models.OrderKindGroup {
		reg.Kind = models.OrderKindIndividual
	}
	if reg.CreatedAt.IsZero() && raw.PaymentOrder != nil {
		reg.CreatedAt = raw.PaymentOrder.CreatedAt
	}
	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = reg.CreatedAt
	}
	if !reg.Status.Valid() {
		reg.Status = models.RegistrationStatusPending
		if raw.PaymentOrder != nil && raw.PaymentOrder.Status.Valid() {
			reg.Status = raw.PaymentOrder.Status
		}
	}

	reg.Areas = p.resolveAreas(raw, call)
	if len(reg.Areas) > call.MaxAreas {
		p.issue(Issue{RecordID: reg.ID, StudentID: reg.StudentID, CallID: call.ID, Action: ActionOverLimit,
			Detail: fmt.Sprintf("%d areas exceed the call limit of %d", len(reg.Areas), call.MaxAreas)})
	}

	reg.TotalCost = float64(len(reg.Areas)) * call.CostPerArea
	if raw.TotalCost != reg.TotalCost {
		p.report.RecomputedCosts++
		p.issue(Issue{RecordID: reg.ID, StudentID: reg.StudentID, CallID: call.ID, Action: ActionCostRecomputed,
			Detail: fmt.Sprintf("total cost %.2f -> %.2f", raw.TotalCost, reg.TotalCost)})
	}

	reg.PaymentOrder = p.resolveOrder(raw.PaymentOrder, reg)
	return reg
}

// resolveAreas maps each reference to an area: embedded object, call area, global area,
// then placeholder. Duplicate ids are collapsed.
func (p *pass) resolveAreas(raw RawRegistration, call models.Call) []models.Area {
	seen := make(map[string]struct{}, len(raw.Areas))
	areas := make([]models.Area, 0, len(raw.Areas))
	for _, ref := range raw.Areas {
		if _, dup := seen[ref.ID]; dup {
			p.issue(Issue{RecordID: raw.ID, StudentID: raw.StudentID, CallID: call.ID, Action: ActionAreaDuplicate,
				Detail: fmt.Sprintf("area %s listed twice", ref.ID)})
			continue
		}
		seen[ref.ID] = struct{}{}

		if ref.Complete() {
			areas = append(areas, models.Area{ID: ref.ID, CallID: ref.CallID, Name: ref.Name, Description: ref.Description, Requirements: ref.Requirements})
			continue
		}
		if a, ok := call.FindArea(ref.ID); ok {
			areas = append(areas, a)
			p.resolvedArea(raw, call, ref)
			continue
		}
		if a, ok := p.areas[ref.ID]; ok {
			areas = append(areas, a)
			p.resolvedArea(raw, call, ref)
			continue
		}
		p.report.PlaceholderAreas++
		p.issue(Issue{RecordID: raw.ID, StudentID: raw.StudentID, CallID: call.ID, Action: ActionAreaPlaceholder,
			Detail: fmt.Sprintf("area %s not found", ref.ID)})
		areas = append(areas, models.Area{
			ID:          ref.ID,
			CallID:      call.ID,
			Name:        fmt.Sprintf(placeholderNameFormat, ref.ID),
			Description: placeholderDescription,
		})
	}
	return areas
}

func (p *pass) resolvedArea(raw RawRegistration, call models.Call, ref RawArea) {
	if ref.Name != "" {
		return
	}
	p.report.ResolvedAreas++
	p.issue(Issue{RecordID: raw.ID, StudentID: raw.StudentID, CallID: call.ID, Action: ActionAreaResolved,
		Detail: fmt.Sprintf("area %s resolved by id", ref.ID)})
}

func (p *pass) resolveOrder(order *models.PaymentOrder, reg models.Registration) models.PaymentOrder {
	if order == nil {
		p.report.SynthesizedOrders++
		p.issue(Issue{RecordID: reg.ID, StudentID: reg.StudentID, CallID: reg.CallID, Action: ActionOrderSynthesized,
			Detail: "payment order missing"})
		return models.PaymentOrder{
			ID:             uuid.NewSHA1(namespace, []byte("order:"+reg.ID)).String(),
			RegistrationID: reg.ID,
			Amount:         reg.TotalCost,
			Status:         reg.Status,
			Kind:           reg.Kind,
			CreatedAt:      reg.CreatedAt,
			ExpiresAt:      expiry(reg.CreatedAt, p.r.orders.TTL(reg.Kind)),
		}
	}
	po := *order
	po.RegistrationID = reg.ID
	if po.ID == "" {
		po.ID = uuid.NewSHA1(namespace, []byte("order:"+reg.ID)).String()
	}
	if !po.Status.Valid() {
		po.Status = reg.Status
	}
	if po.Kind == "" {
		po.Kind = reg.Kind
	}
	if po.ExpiresAt.IsZero() && !po.CreatedAt.IsZero() {
		po.ExpiresAt = po.CreatedAt.Add(p.r.orders.TTL(po.Kind))
	}
	if po.Status == models.RegistrationStatusPending && po.Amount != reg.TotalCost {
		p.issue(Issue{RecordID: reg.ID, StudentID: reg.StudentID, CallID: reg.CallID, Action: ActionOrderAmountSync,
			Detail: fmt.Sprintf("order amount %.2f -> %.2f", po.Amount, reg.TotalCost)})
		po.Amount = reg.TotalCost
	}
	return po
}

func expiry(created time.Time, ttl time.Duration) time.Time {
	if created.IsZero() {
		return time.Time{}
	}
	return created.Add(ttl)
}

// FromRegistrations converts reconciled registrations back to raw form.
func FromRegistrations(regs []models.Registration) []RawRegistration {
	raws := make([]RawRegistration, 0, len(regs))
	for _, reg := range regs {
		raw := RawRegistration{
			ID:        reg.ID,
			StudentID: reg.StudentID,
			CallID:    reg.CallID,
			Status:    reg.Status,
			Kind:      reg.Kind,
			TotalCost: reg.TotalCost,
			CreatedAt: reg.CreatedAt,
			UpdatedAt: reg.UpdatedAt,
		}
		for _, a := range reg.Areas {
			raw.Areas = append(raw.Areas, RawArea{ID: a.ID, CallID: a.CallID, Name: a.Name, Description: a.Description, Requirements: a.Requirements})
		}
		po := reg.PaymentOrder
		raw.PaymentOrder = &po
		raws = append(raws, raw)
	}
	return raws
}
