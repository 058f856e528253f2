package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dwizi/wa-assistant/internal/calendar"
	"github.com/dwizi/wa-assistant/internal/meeting"
	"github.com/dwizi/wa-assistant/internal/roles"
	"github.com/dwizi/wa-assistant/internal/scripts"
	"github.com/dwizi/wa-assistant/internal/state"
	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/urgency"
)

const (
	ownerPhone   = "+56911110000"
	vipPhone     = "+56975551112"
	contactPhone = "+56922223333"
)

type harness struct {
	service  *Service
	state    *state.Store
	docs     store.DocumentStore
	registry *urgency.Registry
	now      time.Time
}

func newHarness(t *testing.T, at time.Time) *harness {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	writer, err := calendar.NewICSWriter(t.TempDir())
	if err != nil {
		t.Fatalf("ics writer: %v", err)
	}
	catalog, err := scripts.Load("")
	if err != nil {
		t.Fatalf("load scripts: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{docs: sqlStore, now: at}
	clock := func() time.Time { return h.now }
	h.state = state.New(sqlStore, logger)
	h.state.SetClock(clock)
	h.registry = urgency.NewRegistry(sqlStore, nil)
	urgencyMachine := urgency.NewMachine(sqlStore, h.registry, writer, catalog, time.UTC, logger)
	urgencyMachine.SetClock(clock)
	meetingMachine := meeting.NewMachine(sqlStore, writer, calendar.NewDocumentQueue(sqlStore), catalog, time.UTC, logger)
	meetingMachine.SetClock(clock)

	h.service = New(Options{
		Validator:  roles.NewValidator(ownerPhone, vipPhone),
		State:      h.state,
		Urgency:    urgencyMachine,
		Meeting:    meetingMachine,
		UrgencyLog: h.registry,
		Scripts:    catalog,
		Logger:     logger,
	})
	h.service.SetClock(clock)

	if _, err := h.state.UpdateConfig(context.Background(), func(config *state.AssistantConfig) error {
		config.BusinessHours.Timezone = "UTC"
		return nil
	}); err != nil {
		t.Fatalf("set timezone: %v", err)
	}
	return h
}

func (h *harness) route(t *testing.T, sender, text string) Decision {
	t.Helper()
	decision, err := h.service.Route(context.Background(), sender, text)
	if err != nil {
		t.Fatalf("route %s %q: %v", sender, text, err)
	}
	return decision
}

func mustReply(t *testing.T, decision Decision) ReplyDecision {
	t.Helper()
	reply, ok := decision.Reply()
	if !ok || decision.Policy() != PolicyReplyToVIP {
		t.Fatalf("expected reply_to_vip decision, got %s", decision.Policy())
	}
	return reply
}

var (
	workingHours = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	lateNight    = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
)

func TestOwnerPlainTextDefersToOwner(t *testing.T) {
	h := newHarness(t, workingHours)
	decision := h.route(t, ownerPhone, "hola, ya llegué")
	if decision.Policy() != PolicyOwner {
		t.Fatalf("expected owner policy, got %s", decision.Policy())
	}
	owner, ok := decision.Owner()
	if !ok || owner.Target != ownerPhone {
		t.Fatalf("unexpected owner payload %+v", owner)
	}
	if _, found, err := h.state.Contact(context.Background(), ownerPhone); err != nil || found {
		t.Fatalf("owner messages must not create contacts: found=%v err=%v", found, err)
	}
}

func TestPauseAndResume(t *testing.T) {
	h := newHarness(t, workingHours)

	reply := mustReply(t, h.route(t, ownerPhone, "/pausar"))
	if reply.Target != ownerPhone || reply.Message != "Asistente pausado." {
		t.Fatalf("unexpected pause reply %+v", reply)
	}
	config, err := h.state.Config(context.Background())
	if err != nil || !config.Paused {
		t.Fatalf("expected paused config, got %+v err=%v", config, err)
	}

	if decision := h.route(t, contactPhone, "quiero agendar una reunion"); decision.Policy() != PolicySilence {
		t.Fatalf("expected silence while paused, got %s", decision.Policy())
	}
	if decision := h.route(t, vipPhone, "urgente"); decision.Policy() != PolicySilence {
		t.Fatalf("expected silence for vip while paused, got %s", decision.Policy())
	}
	contact, found, err := h.state.Contact(context.Background(), contactPhone)
	if err != nil || !found || contact.Stats.Inbound != 1 {
		t.Fatalf("expected inbound recorded while paused, got %+v found=%v err=%v", contact, found, err)
	}

	reply = mustReply(t, h.route(t, ownerPhone, "/agente-on"))
	if reply.Message != "Asistente reanudado." {
		t.Fatalf("unexpected resume reply %q", reply.Message)
	}
	if decision := h.route(t, vipPhone, "urgente"); decision.Policy() != PolicyReplyToVIP {
		t.Fatalf("expected urgency flow after resume, got %s", decision.Policy())
	}
}

func TestOwnerCommands(t *testing.T) {
	h := newHarness(t, workingHours)

	cases := []struct {
		text string
		want string
	}{
		{text: "/nada", want: "Comando no reconocido. Usa /ayuda"},
		{text: "/modo", want: "Uso: /modo normal|busy|vacation"},
		{text: "/modo feriado", want: "Modo inválido. Usa: /modo normal|busy|vacation"},
		{text: "/modo BUSY", want: "Modo actualizado: busy"},
		{text: "/horario 25:00 18:00", want: "Horario inválido. Usa: /horario HH:MM HH:MM"},
		{text: "/horario 18:00 08:00", want: "Horario inválido: el inicio debe ser anterior al término."},
		{text: "/horario 10:00 10:00", want: "Horario inválido: el inicio debe ser anterior al término."},
		{text: "/horario 8:00 18:30", want: "Horario actualizado: 08:00-18:30"},
		{text: "/visto", want: "Uso: /visto <urg-id>"},
		{text: "/visto urg-missing", want: "No encontré la urgencia urg-missing."},
		{text: "/urgencias", want: "Sin urgencias pendientes."},
	}
	for _, tc := range cases {
		reply := mustReply(t, h.route(t, ownerPhone, tc.text))
		if reply.Message != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.text, tc.want, reply.Message)
		}
	}

	config, err := h.state.Config(context.Background())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if config.Mode != state.ModeBusy || config.BusinessHours.Start != "08:00" || config.BusinessHours.End != "18:30" {
		t.Fatalf("unexpected persisted config %+v", config)
	}

	help := mustReply(t, h.route(t, ownerPhone, "/ayuda")).Message
	for _, command := range []string{"/status", "/pausar", "/modo", "/horario", "/forzar-reunion", "/agente-off"} {
		if !strings.Contains(help, command) {
			t.Fatalf("help text missing %s: %q", command, help)
		}
	}
}

func TestStatusCountsActiveSessions(t *testing.T) {
	h := newHarness(t, workingHours)
	h.route(t, vipPhone, "urgente")
	h.route(t, contactPhone, "quiero agendar una reunion")
	h.route(t, "+56933334444", "hola")

	status := mustReply(t, h.route(t, ownerPhone, "/agente")).Message
	for _, want := range []string{
		"Estado asistente",
		"- paused: false",
		"- mode: normal",
		"- business_hours: 09:00-19:00",
		"- contactos en memoria: 3",
		"- sesiones urgencia activas: 1",
		"- sesiones reunión activas: 1",
	} {
		if !strings.Contains(status, want) {
			t.Fatalf("status missing %q:\n%s", want, status)
		}
	}
}

func TestOffHoursNoticeOnlyForThirdParties(t *testing.T) {
	h := newHarness(t, lateNight)

	reply := mustReply(t, h.route(t, contactPhone, "hola, consulta por el precio"))
	if reply.Target != contactPhone || reply.Message != offHoursDefaultText {
		t.Fatalf("unexpected off-hours reply %+v", reply)
	}
	contact, _, err := h.state.Contact(context.Background(), contactPhone)
	if err != nil || contact.Stats.AutoReplies != 1 {
		t.Fatalf("expected auto reply counted, got %+v err=%v", contact, err)
	}

	if decision := h.route(t, vipPhone, "hola, consulta por el precio"); decision.Policy() != PolicySilence {
		t.Fatalf("vip must not get off-hours notice, got %s", decision.Policy())
	}
	if decision := h.route(t, ownerPhone, "hola, consulta por el precio"); decision.Policy() != PolicyOwner {
		t.Fatalf("owner must not get off-hours notice, got %s", decision.Policy())
	}

	meetingReply := mustReply(t, h.route(t, "+56944445555", "quiero agendar una reunion"))
	if !strings.Contains(meetingReply.Message, "tema") {
		t.Fatalf("meeting intent must bypass off-hours notice, got %q", meetingReply.Message)
	}
	followUp := mustReply(t, h.route(t, "+56944445555", "Revisión de contrato"))
	if followUp.Message == offHoursDefaultText {
		t.Fatal("active meeting must bypass off-hours notice")
	}

	mustReply(t, h.route(t, ownerPhone, "/modo vacation"))
	vacation := mustReply(t, h.route(t, contactPhone, "otra consulta"))
	if vacation.Message != offHoursVacationText {
		t.Fatalf("expected vacation text, got %q", vacation.Message)
	}

	events, err := h.state.Metrics(context.Background(), lateNight.Add(-time.Hour))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	offHours := 0
	for _, event := range events {
		if event.Kind == state.MetricAutoReplyOffHour {
			offHours++
		}
	}
	if offHours != 2 {
		t.Fatalf("expected 2 off-hours metric events, got %d", offHours)
	}
}

func TestMeetingDialogThroughRouter(t *testing.T) {
	h := newHarness(t, workingHours)

	intro := mustReply(t, h.route(t, contactPhone, "quiero agendar una reunion"))
	if !strings.Contains(intro.Message, "tema") {
		t.Fatalf("expected topic prompt, got %q", intro.Message)
	}
	for _, text := range []string{"Revisión de propuesta", "mañana", "10:30", "30 min", "videollamada"} {
		mustReply(t, h.route(t, contactPhone, text))
	}
	final := mustReply(t, h.route(t, contactPhone, "1"))
	if final.Attachments.Contact == "" || final.Attachments.Owner == "" {
		t.Fatalf("expected calendar attachments, got %+v", final.Attachments)
	}
	if final.Owner != ownerPhone || !strings.Contains(final.OwnerMessage, "Nueva solicitud de reunión") {
		t.Fatalf("unexpected owner summary %+v", final)
	}
	if len(final.Delayed) != 1 || final.Delayed[0].Target != contactPhone || final.Delayed[0].Delay != meeting.FollowUpDelay {
		t.Fatalf("expected follow-up delayed message, got %+v", final.Delayed)
	}

	again := h.route(t, contactPhone, "1")
	if reply, ok := again.Reply(); ok && reply.Attachments.Contact != "" {
		t.Fatalf("repeated confirmation must not create another artifact: %+v", reply)
	}
	queue, err := calendar.NewDocumentQueue(h.docs).Pending(context.Background())
	if err != nil || len(queue) != 1 {
		t.Fatalf("expected one sync entry, got %d err=%v", len(queue), err)
	}
}

func TestScriptedReplyByIntent(t *testing.T) {
	h := newHarness(t, workingHours)
	reply := mustReply(t, h.route(t, contactPhone, "tengo un error en la app"))
	if reply.Message != scripts.Defaults().Scripts[scripts.KeyTechHelp] {
		t.Fatalf("expected tech help script, got %q", reply.Message)
	}
	if decision := h.route(t, contactPhone, "   "); decision.Policy() != PolicySilence {
		t.Fatalf("expected silence for blank text, got %s", decision.Policy())
	}
}

func TestVIPImmediateUrgencyEscalates(t *testing.T) {
	h := newHarness(t, lateNight)

	menu := mustReply(t, h.route(t, vipPhone, "URGENTE"))
	if menu.Target != vipPhone || !strings.Contains(menu.Message, "4) Urgencia inmediata") {
		t.Fatalf("expected urgency menu, got %+v", menu)
	}
	mustReply(t, h.route(t, vipPhone, "4"))
	mustReply(t, h.route(t, vipPhone, "se cayó el servidor de pagos"))
	final := mustReply(t, h.route(t, vipPhone, "1"))
	if !strings.Contains(final.OwnerMessage, "URGENCIA VIP (inmediata) [CRITICA]") {
		t.Fatalf("unexpected owner alert %q", final.OwnerMessage)
	}
	if len(final.Delayed) != 1 || final.Delayed[0].Target != ownerPhone || final.Delayed[0].Delay <= 0 {
		t.Fatalf("expected owner retry, got %+v", final.Delayed)
	}

	if decision := h.route(t, vipPhone, "1"); decision.Policy() != PolicySilence {
		t.Fatalf("closed session must not re-finalize, got %s", decision.Policy())
	}

	list := mustReply(t, h.route(t, ownerPhone, "/urgencias")).Message
	records, err := h.registry.Unseen(context.Background(), 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one unseen record, got %d err=%v", len(records), err)
	}
	if !strings.Contains(list, records[0].ID) {
		t.Fatalf("urgency list missing %s: %q", records[0].ID, list)
	}
	seen := mustReply(t, h.route(t, ownerPhone, "/visto "+records[0].ID)).Message
	if seen != "Urgencia "+records[0].ID+" marcada como vista." {
		t.Fatalf("unexpected /visto reply %q", seen)
	}
}

func TestVIPWithoutTriggerIsSilent(t *testing.T) {
	h := newHarness(t, workingHours)
	if decision := h.route(t, vipPhone, "hola, ¿cómo estás?"); decision.Policy() != PolicySilence {
		t.Fatalf("expected silence, got %s", decision.Policy())
	}
}

func TestForceMeetingAnswersOwnerAndRelaysIntro(t *testing.T) {
	h := newHarness(t, workingHours)

	reply := mustReply(t, h.route(t, ownerPhone, "/forzar-reunion "+contactPhone))
	if reply.Target != ownerPhone || !strings.Contains(reply.Message, "tema") {
		t.Fatalf("expected intro addressed to the owner, got %+v", reply)
	}
	if len(reply.Relays) != 1 || reply.Relays[0].Target != contactPhone || reply.Relays[0].Message != reply.Message {
		t.Fatalf("expected intro relayed to target, got %+v", reply.Relays)
	}
	if reply.OwnerMessage != "" || len(reply.Delayed) != 0 {
		t.Fatalf("unexpected extra payload %+v", reply)
	}
	next := mustReply(t, h.route(t, contactPhone, "Revisión anual"))
	if !strings.Contains(next.Message, "fecha") {
		t.Fatalf("expected date prompt, got %q", next.Message)
	}

	usage := mustReply(t, h.route(t, ownerPhone, "/forzar-reunion"))
	if usage.Target != ownerPhone || usage.Message != "Uso: /forzar-reunion +MSISDN" {
		t.Fatalf("unexpected usage reply %+v", usage)
	}
}

func TestRouteDifferentContactsConcurrently(t *testing.T) {
	h := newHarness(t, workingHours)
	const (
		workers    = 8
		perWorker  = 10
		perContact = 2
	)
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*perContact)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				phone := fmt.Sprintf("+5698%02d%04d", w, i)
				for n := 0; n < perContact; n++ {
					if _, err := h.service.Route(context.Background(), phone, "hola, tengo una consulta de precio"); err != nil {
						errs <- fmt.Errorf("route %s: %w", phone, err)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	events, err := h.state.Metrics(context.Background(), workingHours.Add(-time.Hour))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	inbound, scripted := 0, 0
	for _, event := range events {
		switch event.Kind {
		case state.MetricInbound:
			inbound++
		case state.MetricScriptedReply:
			scripted++
		}
	}
	total := workers * perWorker * perContact
	if inbound != total || scripted != total {
		t.Fatalf("expected %d inbound and scripted events, got %d and %d", total, inbound, scripted)
	}

	contacts, err := h.state.ListContacts(context.Background())
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != workers*perWorker {
		t.Fatalf("expected %d contacts, got %d", workers*perWorker, len(contacts))
	}
	for _, contact := range contacts {
		if contact.Stats.Inbound != perContact || contact.Stats.AutoReplies != perContact {
			t.Fatalf("unexpected stats for %s: %+v", contact.Phone, contact.Stats)
		}
	}
}

type panickingUrgency struct{}

func (panickingUrgency) Handle(ctx context.Context, phone, text string) (urgency.Result, error) {
	panic("boom")
}

func TestRouteRecoversFromPanics(t *testing.T) {
	h := newHarness(t, workingHours)
	h.service.urgency = panickingUrgency{}
	decision, err := h.service.Route(context.Background(), vipPhone, "urgente")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if decision.Policy() != PolicySilence {
		t.Fatalf("expected silence, got %s", decision.Policy())
	}
}

type failingUrgency struct{}

func (failingUrgency) Handle(ctx context.Context, phone, text string) (urgency.Result, error) {
	return urgency.Result{}, store.ErrConflict
}

func TestRouteSurfacesStoreConflicts(t *testing.T) {
	h := newHarness(t, workingHours)
	h.service.urgency = failingUrgency{}
	_, err := h.service.Route(context.Background(), vipPhone, "urgente")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestDecisionJSON(t *testing.T) {
	encoded, err := json.Marshal(Reply(ReplyDecision{Target: contactPhone, Message: "hola"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(encoded, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["policy"] != string(PolicyReplyToVIP) || payload["reply"] == nil || payload["alert"] != nil {
		t.Fatalf("unexpected payload %s", encoded)
	}

	var zero Decision
	if zero.Policy() != PolicySilence {
		t.Fatalf("zero decision must be silence, got %s", zero.Policy())
	}
}

func TestSplitCommandAndAliases(t *testing.T) {
	command, arg := splitCommand("/Horario   08:00 18:00")
	if command != "horario" || arg != "08:00 18:00" {
		t.Fatalf("unexpected split %q %q", command, arg)
	}
	for alias, want := range map[string]string{
		"agente":        "status",
		"agente-status": "status",
		"agente-off":    "pausar",
		"agente-on":     "reanudar",
		"visto":         "visto",
	} {
		if got := resolveCommand(alias); got != want {
			t.Fatalf("resolve %s: expected %s, got %s", alias, want, got)
		}
	}
}
