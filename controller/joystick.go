package controller

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Joystick event types of the Linux joystick API.
const (
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80
)

// jsEventSize is the size of struct js_event: u32 time in ms, s16 value,
// u8 type, u8 number.
const jsEventSize = 8

// parseJSEvent decodes one joystick event. Unknown types return false.
func parseJSEvent(b []byte) (Event, bool) {
	value := int16(binary.NativeEndian.Uint16(b[4:6]))
	typ := b[6]
	ev := Event{
		Number:  int(b[7]),
		Initial: typ&jsEventInit != 0,
	}
	switch typ &^ jsEventInit {
	case jsEventButton:
		ev.Kind = EventButton
		ev.Pressed = value != 0
	case jsEventAxis:
		ev.Kind = EventAxis
		ev.Value = float64(value) / 32767
		if ev.Value < -1 {
			ev.Value = -1
		}
	default:
		return Event{}, false
	}
	return ev, true
}

// JoystickOpts are options for a JoystickListener.
type JoystickOpts struct {
	Dir     string // Device nodes, default /dev/input.
	SysDir  string // Sysfs input class, default /sys/class/input.
	Verbose bool
}

// JoystickListener finds Linux joystick device nodes (js0, js1, ...) and
// watches for new ones with fsnotify.
type JoystickListener struct {
	opts     JoystickOpts
	watcher  *fsnotify.Watcher
	arrivals chan Device
	errors   chan error
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	closeErr error

	mutex sync.Mutex
	open  map[string]*joystick
}

// Ensure that JoystickListener implements interface Listener.
var _ Listener = (*JoystickListener)(nil)

// NewJoystickListener starts watching opts.Dir. Nodes present at start are
// delivered first.
func NewJoystickListener(opts *JoystickOpts) (listener *JoystickListener, rerr error) {
	var xopts JoystickOpts
	if opts != nil {
		xopts = *opts
	}
	if xopts.Dir == "" {
		xopts.Dir = "/dev/input"
	}
	if xopts.SysDir == "" {
		xopts.SysDir = "/sys/class/input"
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new device watcher: %w", err)
	}
	defer func() {
		if rerr != nil {
			watcher.Close()
		}
	}()
	if err := watcher.Add(xopts.Dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", xopts.Dir, err)
	}

	entries, err := os.ReadDir(xopts.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", xopts.Dir, err)
	}
	var initial []string
	for _, e := range entries {
		if isJoystickNode(e.Name()) {
			initial = append(initial, filepath.Join(xopts.Dir, e.Name()))
		}
	}

	l := &JoystickListener{
		opts:     xopts,
		watcher:  watcher,
		arrivals: make(chan Device),
		errors:   make(chan error),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		open:     map[string]*joystick{},
	}
	go l.run(initial)
	return l, nil
}

func isJoystickNode(name string) bool {
	if !strings.HasPrefix(name, "js") {
		return false
	}
	_, err := strconv.Atoi(name[2:])
	return err == nil
}

func (l *JoystickListener) logf(format string, args ...interface{}) {
	if l.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Arrivals returns newly found joysticks.
func (l *JoystickListener) Arrivals() <-chan Device {
	return l.arrivals
}

// Errors returns failures to open joysticks or to watch the directory.
func (l *JoystickListener) Errors() <-chan error {
	return l.errors
}

// Close stops watching. It does not close delivered devices.
func (l *JoystickListener) Close() error {
	l.once.Do(func() {
		close(l.stop)
		l.closeErr = l.watcher.Close()
	})
	<-l.done
	return l.closeErr
}

func (l *JoystickListener) run(initial []string) {
	defer close(l.done)
	defer close(l.errors)
	defer close(l.arrivals)

	for _, path := range initial {
		if !l.add(path) {
			return
		}
	}

	for {
		select {
		case <-l.stop:
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isJoystickNode(filepath.Base(ev.Name)) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				if !l.add(ev.Name) {
					return
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				l.mutex.Lock()
				js := l.open[ev.Name]
				l.mutex.Unlock()
				if js != nil {
					l.logf("joystick: %s removed", ev.Name)
					js.Close()
				}
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			if !l.report(fmt.Errorf("watching for joysticks: %w", err)) {
				return
			}
		}
	}
}

// add opens path and delivers it, or reports the failure. It returns false
// when the listener is stopping.
func (l *JoystickListener) add(path string) bool {
	l.mutex.Lock()
	_, dup := l.open[path]
	l.mutex.Unlock()
	if dup {
		return true
	}

	js, err := l.openJoystick(path)
	if err != nil {
		return l.report(err)
	}
	l.mutex.Lock()
	l.open[path] = js
	l.mutex.Unlock()

	l.logf("joystick: %s: %q [%016X]", path, js.name, js.id)
	select {
	case l.arrivals <- js:
		return true
	case <-l.stop:
		js.Close()
		return false
	}
}

func (l *JoystickListener) report(err error) bool {
	select {
	case l.errors <- err:
		return true
	case <-l.stop:
		return false
	}
}

// openJoystick opens a node. Right after creation the node may not yet be
// readable while permissions are being applied, so opening is retried briefly.
func (l *JoystickListener) openJoystick(path string) (*joystick, error) {
	var f *os.File
	var err error
	for i := 0; i < 10; i++ {
		f, err = os.Open(path)
		if err == nil || !errors.Is(err, os.ErrPermission) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("opening joystick: %w", err)
	}

	base := filepath.Join(l.opts.SysDir, filepath.Base(path), "device")
	name := readSysfs(filepath.Join(base, "name"))
	if name == "" {
		name = filepath.Base(path)
	}
	vendor, _ := strconv.ParseUint(readSysfs(filepath.Join(base, "id", "vendor")), 16, 16)
	product, _ := strconv.ParseUint(readSysfs(filepath.Join(base, "id", "product")), 16, 16)

	js := &joystick{
		path:   path,
		id:     vendor<<16 | product,
		name:   name,
		file:   f,
		events: make(chan Event, 64),
		closed: make(chan struct{}),
		forget: func() {
			l.mutex.Lock()
			delete(l.open, path)
			l.mutex.Unlock()
		},
	}
	go js.read(l.logf)
	return js, nil
}

func readSysfs(path string) string {
	buf, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}

// joystick is one opened device node.
type joystick struct {
	path   string
	id     uint64
	name   string
	file   *os.File
	events chan Event
	closed chan struct{}
	once   sync.Once
	forget func()
}

// Ensure that joystick implements interface Device.
var _ Device = (*joystick)(nil)

func (js *joystick) ID() uint64           { return js.id }
func (js *joystick) Name() string         { return js.name }
func (js *joystick) Events() <-chan Event { return js.events }

// Close closes the node; the reader then sends a Disconnect.
func (js *joystick) Close() error {
	var err error
	js.once.Do(func() {
		close(js.closed)
		err = js.file.Close()
	})
	return err
}

func (js *joystick) read(logf func(string, ...interface{})) {
	defer close(js.events)
	defer js.forget()

	buf := make([]byte, jsEventSize)
	for {
		if _, err := io.ReadFull(js.file, buf); err != nil {
			select {
			case <-js.closed:
			default:
				logf("joystick: %s: %v", js.path, err)
			}
			break
		}
		ev, ok := parseJSEvent(buf)
		if !ok {
			continue
		}
		select {
		case js.events <- ev:
		case <-js.closed:
		}
	}
	js.Close()
	// A full buffer means nobody is reading; closing the channel still
	// signals the disconnect.
	select {
	case js.events <- Event{Kind: EventDisconnect}:
	default:
	}
}
