// Package ingest normalizes raw adapter records into canonical
// messages. It is the single point where field coalescing, validation,
// derivation, and the significant-change gate happen.
package ingest

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"skysignal/internal/signal"
	"skysignal/internal/storage"
)

// Handler receives each normalized message that passes the gate.
type Handler func(msg *signal.Message)

// SegmentHandler receives voice transcription segments bound for the
// EAM pipeline.
type SegmentHandler func(seg signal.Segment)

// Config tunes the processor.
type Config struct {
	// HeartbeatInterval forces an emission for a quiet aircraft so
	// downstream last-seen clocks keep moving.
	HeartbeatInterval time.Duration
	// IDRetention is how long a stable aircraft ID survives without a
	// sighting. An aircraft reappearing inside the window keeps its ID.
	IDRetention time.Duration
}

const (
	defaultHeartbeat   = 30 * time.Second
	defaultIDRetention = 24 * time.Hour

	sigPositionM  = 100.0
	sigAltitudeFt = 50.0
	sigSpeedKt    = 5.0
	sigHeadingDeg = 2.0
)

// Processor is safe for concurrent Process calls.
type Processor struct {
	cfg    Config
	store  storage.Store
	logger *log.Logger

	// isWatchedHex reports membership in the configured military hex
	// ranges, beyond the blanket 0xAE allocation.
	isWatchedHex func(hex string) bool

	onMessage Handler
	onSegment SegmentHandler

	mu        sync.Mutex
	emits     map[string]*emitState
	ids       map[string]*idEntry
	nextPrune time.Time
	dropped   int64
}

type emitState struct {
	at       time.Time
	lat, lon float64
	hasPos   bool
	altFt    float64
	gsKt     float64
	hdgDeg   float64
	onGround bool
}

type idEntry struct {
	id        string
	firstSeen time.Time
	lastSeen  time.Time
}

// New builds a processor. isWatchedHex may be nil.
func New(cfg Config, store storage.Store, isWatchedHex func(string) bool,
	onMessage Handler, onSegment SegmentHandler, logger *log.Logger) *Processor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.IDRetention <= 0 {
		cfg.IDRetention = defaultIDRetention
	}
	if isWatchedHex == nil {
		isWatchedHex = func(string) bool { return false }
	}
	return &Processor{
		cfg:          cfg,
		store:        store,
		logger:       logger.WithPrefix("processor"),
		isWatchedHex: isWatchedHex,
		onMessage:    onMessage,
		onSegment:    onSegment,
		emits:        make(map[string]*emitState),
		ids:          make(map[string]*idEntry),
	}
}

// Dropped reports records discarded by validation or decoding.
func (p *Processor) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Process routes one raw adapter record. Failures are logged and the
// record discarded; Process never panics the pipeline.
func (p *Processor) Process(src signal.Source, payload any) {
	switch v := payload.(type) {
	case signal.ADSBRecord:
		p.processADSB(src, &v)
	case *signal.ADSBRecord:
		p.processADSB(src, v)
	case signal.ACARSEnvelope:
		p.processACARS(src, &v)
	case *signal.ACARSEnvelope:
		p.processACARS(src, v)
	case signal.EAMAPIRecord:
		p.processEAMRecord(&v)
	case *signal.EAMAPIRecord:
		p.processEAMRecord(v)
	default:
		p.discard("unknown payload type", "type", fmt.Sprintf("%T", payload))
	}
}

func (p *Processor) processADSB(src signal.Source, rec *signal.ADSBRecord) {
	hex := signal.CanonicalHex(rec.Identifier())
	if hex == "" {
		p.discard("adsb record without usable hex", "raw", rec.Identifier())
		return
	}
	if rec.Lat == nil || rec.Lon == nil || !signal.ValidLatLon(*rec.Lat, *rec.Lon) {
		p.discard("adsb record without valid position", "hex", hex)
		return
	}

	now := time.Now().UTC()

	onGround := bool(rec.Gnd) || rec.AltBaro.Ground
	altFt := firstSet(rec.AltBaro, rec.AltGeom, rec.Alt, rec.GAlt)
	gs := firstSet(rec.GS, rec.Spd)
	hdg := firstSet(rec.Track, rec.Trak)
	vs := firstSet(rec.BaroRate, rec.VSI)

	squawk := rec.Squawk
	if squawk == "" {
		squawk = rec.Sqk
	}

	reg := rec.Reg
	if reg == "" {
		reg = rec.RegAlias
	}

	military := bool(rec.Mil) || rec.DBFlags&1 != 0 ||
		strings.HasPrefix(hex, "ae") || p.isWatchedHex(hex)

	msg := &signal.Message{
		ID:        p.stableID(src, hex, now),
		Timestamp: now,
		Source:    src,

		Hex:          hex,
		Flight:       coalesceTrim(rec.Flight, rec.Call),
		Registration: strings.TrimSpace(reg),
		AircraftType: strings.TrimSpace(rec.Type),

		Position: &signal.Position{
			Lat:        *rec.Lat,
			Lon:        *rec.Lon,
			AltitudeFt: altFt,
		},
		Coordinates: signal.FormatCoordinates(*rec.Lat, *rec.Lon),

		GroundSpeedKt:   gs,
		HeadingDeg:      hdg,
		VerticalRateFpm: vs,
		OnGround:        onGround,

		Squawk:          squawk,
		EmitterCategory: rec.Category,
		Emergency:       coalesceTrim(rec.Emerg, emergencyFromSquawk(squawk)),
		SPI:             bool(rec.SPI),
		Alert:           bool(rec.Alert),

		NIC:  rec.NIC,
		NACp: rec.NACp,
		NACv: rec.NACv,
		SIL:  rec.SIL,

		FlightPhase: flightPhase(onGround, vs),
		Military:    military,
		Validation:  signal.Validation{Valid: true},
	}

	if !p.significant(src, hex, msg, now) {
		return
	}

	p.persist(msg)
	p.onMessage(msg)
}

var oooiRe = regexp.MustCompile(`\b(OUT|OFF|ON|IN)[\s/:]*(\d{4})\b`)

// cpdlcLabels are the datalink labels the feed tags CPDLC traffic with.
var cpdlcLabels = map[string]struct{}{
	"A6": {}, "AA": {}, "B6": {}, "BA": {},
}

func (p *Processor) processACARS(src signal.Source, env *signal.ACARSEnvelope) {
	inner := env.Inner()
	if inner == nil {
		p.discard("acars frame with no message body")
		return
	}

	tail := strings.TrimSpace(inner.Tail)
	if tail == "" && env.Airframe != nil {
		tail = strings.TrimSpace(env.Airframe.Tail)
	}
	flight := strings.TrimSpace(inner.Flight)
	if flight == "" && env.FlightV != nil {
		flight = strings.TrimSpace(env.FlightV.Flight)
	}
	if tail == "" && flight == "" {
		p.discard("acars record without tail or flight")
		return
	}

	hex := ""
	if env.Airframe != nil {
		hex = signal.CanonicalHex(env.Airframe.ICAO)
	}
	if hex == "" {
		hex = signal.CanonicalHex(inner.FromHex)
	}

	ts := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, inner.Timestamp); err == nil {
		ts = t.UTC()
	}

	military := strings.HasPrefix(hex, "ae") || p.isWatchedHex(hex)
	aircraftType := ""
	if env.Airframe != nil {
		military = military || env.Airframe.Military
		aircraftType = env.Airframe.Type
	}

	msg := &signal.Message{
		ID:        fmt.Sprintf("%s_%d", src.Type, inner.ID),
		Timestamp: ts,
		Source:    src,

		Hex:          hex,
		Tail:         tail,
		Flight:       flight,
		AircraftType: aircraftType,

		Label:      inner.Label,
		Text:       inner.Text,
		Military:   military,
		Validation: signal.Validation{Valid: true},
	}

	if env.FlightV != nil && (env.FlightV.Latitude != 0 || env.FlightV.Longitude != 0) &&
		signal.ValidLatLon(env.FlightV.Latitude, env.FlightV.Longitude) {
		msg.Position = &signal.Position{
			Lat:        env.FlightV.Latitude,
			Lon:        env.FlightV.Longitude,
			AltitudeFt: env.FlightV.Altitude,
		}
		msg.Coordinates = signal.FormatCoordinates(env.FlightV.Latitude, env.FlightV.Longitude)
	}

	if m := oooiRe.FindStringSubmatch(strings.ToUpper(inner.Text)); m != nil {
		msg.OOOI = &signal.OOOI{Event: m[1], Time: m[2]}
		switch m[1] {
		case "OUT", "IN":
			msg.FlightPhase = "ground"
		case "OFF":
			msg.FlightPhase = "climb"
		case "ON":
			msg.FlightPhase = "descent"
		}
	}
	if _, ok := cpdlcLabels[strings.ToUpper(inner.Label)]; ok {
		msg.CPDLC = &signal.CPDLC{Type: "cpdlc"}
	}

	// ACARS traffic is discrete; every valid message is emitted.
	p.persist(msg)
	p.onMessage(msg)
}

func (p *Processor) processEAMRecord(rec *signal.EAMAPIRecord) {
	text := strings.TrimSpace(rec.Transcription)
	if text == "" {
		text = strings.TrimSpace(rec.Body)
	}
	if text == "" {
		p.discard("eam record without transcription", "id", int64(rec.ID))
		return
	}

	ts := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
		ts = t.UTC()
	}

	segID := rec.RecordingID
	if segID == "" {
		segID = fmt.Sprintf("eam_%d", int64(rec.ID))
	}

	p.onSegment(signal.Segment{
		SegmentID:  segID,
		FeedID:     rec.FeedID,
		Timestamp:  ts,
		Text:       text,
		Confidence: rec.Confidence,
		DurationS:  rec.DurationS,
	})
}

// stableID returns the aircraft's stable identifier for this source,
// creating one on first sight and pruning long-gone entries.
func (p *Processor) stableID(src signal.Source, hex string, now time.Time) string {
	key := string(src.Type) + "|" + hex

	p.mu.Lock()
	defer p.mu.Unlock()

	if now.After(p.nextPrune) {
		for k, e := range p.ids {
			if now.Sub(e.lastSeen) > p.cfg.IDRetention {
				delete(p.ids, k)
				delete(p.emits, k)
			}
		}
		p.nextPrune = now.Add(time.Hour)
	}

	e, ok := p.ids[key]
	if !ok {
		e = &idEntry{
			id:        fmt.Sprintf("%s_%s_%d", src.Type, hex, now.Unix()),
			firstSeen: now,
		}
		p.ids[key] = e
	}
	e.lastSeen = now
	return e.id
}

// significant applies the change gate and, when it passes, records the
// new snapshot as the comparison baseline.
func (p *Processor) significant(src signal.Source, hex string, msg *signal.Message, now time.Time) bool {
	key := string(src.Type) + "|" + hex

	p.mu.Lock()
	defer p.mu.Unlock()

	prev, seen := p.emits[key]
	emit := !seen
	if seen {
		switch {
		case now.Sub(prev.at) >= p.cfg.HeartbeatInterval:
			emit = true
		case msg.OnGround != prev.onGround:
			emit = true
		case msg.HasPosition() && prev.hasPos &&
			haversineM(prev.lat, prev.lon, msg.Position.Lat, msg.Position.Lon) > sigPositionM:
			emit = true
		case msg.HasPosition() && math.Abs(msg.Position.AltitudeFt-prev.altFt) >= sigAltitudeFt:
			emit = true
		case math.Abs(msg.GroundSpeedKt-prev.gsKt) >= sigSpeedKt:
			emit = true
		case headingDeltaDeg(prev.hdgDeg, msg.HeadingDeg) >= sigHeadingDeg:
			emit = true
		}
	}
	if !emit {
		return false
	}

	st := &emitState{
		at:       now,
		gsKt:     msg.GroundSpeedKt,
		hdgDeg:   msg.HeadingDeg,
		onGround: msg.OnGround,
	}
	if msg.HasPosition() {
		st.hasPos = true
		st.lat = msg.Position.Lat
		st.lon = msg.Position.Lon
		st.altFt = msg.Position.AltitudeFt
	}
	p.emits[key] = st
	return true
}

// persist writes best-effort: a storage failure never stalls the feed.
func (p *Processor) persist(msg *signal.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.SaveMessage(ctx, msg); err != nil {
		p.logger.Warn("save message failed", "id", msg.ID, "err", err)
	}
	if msg.HasPosition() || msg.Tail != "" || msg.Flight != "" {
		if err := p.store.UpdateAircraftTracking(ctx, msg); err != nil {
			p.logger.Warn("tracking update failed", "id", msg.ID, "err", err)
		}
	}
}

func (p *Processor) discard(reason string, kv ...any) {
	p.mu.Lock()
	p.dropped++
	p.mu.Unlock()
	p.logger.Debug(reason, kv...)
}

func firstSet(vals ...signal.FlexFloat) float64 {
	for _, v := range vals {
		if v.Set && !v.Ground {
			return v.Value
		}
	}
	return 0
}

func coalesceTrim(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func flightPhase(onGround bool, vs float64) string {
	switch {
	case onGround:
		return "ground"
	case vs > 500:
		return "climb"
	case vs < -500:
		return "descent"
	default:
		return "cruise"
	}
}

func emergencyFromSquawk(squawk string) string {
	switch squawk {
	case "7500", "7600", "7700":
		return squawk
	}
	return ""
}

const earthRadiusM = 6371000.0

// haversineM is the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// headingDeltaDeg is the smallest angular difference between headings.
func headingDeltaDeg(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
