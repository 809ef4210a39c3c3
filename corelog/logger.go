package corelog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"canisdk/core"
)

// Logger is a hierarchical, runtime-reconfigurable logger whose settings
// and in-memory ring sink survive canister upgrades, per spec §4.7. The
// console sink is a *logrus.Logger; the in-memory sink is independent of it
// so get_logs never depends on the host having a console at all.
type Logger struct {
	console *logrus.Logger
	sink    *RingSink
	acl     *Acl
	cfg     *SettingsCell

	filter atomic.Pointer[Filter] // consulted by every emit-time call

	mu       sync.Mutex // guards sink resize and cfg writes against each other
	nowNanos func() int64
}

// Init wires up a brand-new Logger over freshly-allocated sub-memories,
// called once per canister lifetime, per spec §4.7 "init". caller is
// granted Configure immediately so the canister is never left unable to
// reconfigure its own logger.
func Init(caller core.Principal, cfgSM, slotsSM, stateSM *core.SubMemory, settings Settings, nowNanos func() int64) *Logger {
	l := &Logger{
		console:  logrus.New(),
		sink:     NewRingSink(slotsSM, stateSM, settings.MaxRecordLength, uint64(settings.InMemoryRecords)),
		acl:      NewAcl(),
		cfg:      NewSettingsCell(cfgSM, settings),
		nowNanos: nowNanos,
	}
	l.acl.Grant(caller, PermissionConfigure)
	f, err := ParseFilter(settings.Filter)
	if err != nil {
		f = &Filter{Default: LevelInfo, PerTarget: map[string]Level{}}
	}
	l.filter.Store(f)
	l.applyConsoleLevel()
	return l
}

// Reload reattaches a Logger to sub-memories initialised by a prior Init,
// called once per upgrade, per spec §4.7 "reload".
func Reload(cfgSM, slotsSM, stateSM *core.SubMemory, nowNanos func() int64) *Logger {
	cfg := OpenSettingsCell(cfgSM)
	settings := cfg.Get()
	l := &Logger{
		console:  logrus.New(),
		sink:     OpenRingSink(slotsSM, stateSM, settings.MaxRecordLength, uint64(settings.InMemoryRecords)),
		acl:      NewAcl(), // the ACL is held in memory only, so Reload starts with it empty; see DESIGN.md
		cfg:      cfg,
		nowNanos: nowNanos,
	}
	f, err := ParseFilter(settings.Filter)
	if err != nil {
		f = &Filter{Default: LevelInfo, PerTarget: map[string]Level{}}
	}
	l.filter.Store(f)
	l.applyConsoleLevel()
	return l
}

func (l *Logger) applyConsoleLevel() {
	switch l.filter.Load().Default {
	case LevelTrace:
		l.console.SetLevel(logrus.TraceLevel)
	case LevelDebug:
		l.console.SetLevel(logrus.DebugLevel)
	case LevelInfo:
		l.console.SetLevel(logrus.InfoLevel)
	case LevelWarn:
		l.console.SetLevel(logrus.WarnLevel)
	case LevelError:
		l.console.SetLevel(logrus.ErrorLevel)
	}
}

// AddPermission grants target a permission. Requires caller to hold
// Configure.
func (l *Logger) AddPermission(caller, target core.Principal, perm Permission) error {
	if !l.acl.Check(caller, PermissionConfigure) {
		return ErrPermissionDenied
	}
	l.acl.Grant(target, perm)
	return nil
}

// RemovePermission revokes target's permission entirely. Requires caller to
// hold Configure.
func (l *Logger) RemovePermission(caller, target core.Principal) error {
	if !l.acl.Check(caller, PermissionConfigure) {
		return ErrPermissionDenied
	}
	l.acl.Revoke(target)
	return nil
}

// SetFilter installs a new filter string. Requires caller to hold
// Configure.
func (l *Logger) SetFilter(caller core.Principal, filter string) error {
	if !l.acl.Check(caller, PermissionConfigure) {
		return ErrPermissionDenied
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter.Store(f)
	l.applyConsoleLevel()
	s := l.cfg.Get()
	s.Filter = filter
	if err := l.cfg.Set(s); err != nil {
		core.Trap("corelog: persist filter: %v", err)
	}
	return nil
}

// SetInMemoryRecords resizes the ring sink's retained record count.
// Requires caller to hold Configure. The existing ring's contents are
// dropped — resizing a ring buffer in place without losing ordering
// guarantees is not worth the complexity here (spec.md names no invariant
// that survives a resize).
func (l *Logger) SetInMemoryRecords(caller core.Principal, n int) error {
	if !l.acl.Check(caller, PermissionConfigure) {
		return ErrPermissionDenied
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.cfg.Get()
	s.InMemoryRecords = n
	if err := l.cfg.Set(s); err != nil {
		core.Trap("corelog: persist in-memory record count: %v", err)
	}
	return nil
}

// GetLogs returns a page of records from the ring sink. Requires caller to
// hold at least Read.
func (l *Logger) GetLogs(caller core.Principal, offset, count uint64) ([]Record, error) {
	if !l.acl.Check(caller, PermissionRead) {
		return nil, ErrPermissionDenied
	}
	return l.sink.Page(offset, count), nil
}

// emit is the common path for every level-specific helper below: check the
// filter, then write to whichever sinks are enabled.
func (l *Logger) emit(target string, level Level, msg string) {
	if !l.filter.Load().Allows(target, level) {
		return
	}
	s := l.cfg.Get()
	if s.InMemory {
		l.sink.Push(Record{TimestampNanos: uint64(l.nowNanos()), Level: level, Target: target, Message: msg})
	}
	if s.Console {
		entry := l.console.WithField("target", target)
		switch level {
		case LevelTrace:
			entry.Trace(msg)
		case LevelDebug:
			entry.Debug(msg)
		case LevelInfo:
			entry.Info(msg)
		case LevelWarn:
			entry.Warn(msg)
		case LevelError:
			entry.Error(msg)
		}
	}
}

func (l *Logger) Tracef(target, format string, args ...any) { l.emit(target, LevelTrace, fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(target, format string, args ...any) { l.emit(target, LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(target, format string, args ...any)  { l.emit(target, LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(target, format string, args ...any)  { l.emit(target, LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(target, format string, args ...any) { l.emit(target, LevelError, fmt.Sprintf(format, args...)) }
