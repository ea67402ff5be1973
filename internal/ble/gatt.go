package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"wcommd/internal/commissioning"
)

const (
	bluezService     = "org.bluez"
	gattManagerIface = "org.bluez.GattManager1"
	gattServiceIface = "org.bluez.GattService1"
	gattCharIface    = "org.bluez.GattCharacteristic1"
	objManagerIface  = "org.freedesktop.DBus.ObjectManager"
	propsIface       = "org.freedesktop.DBus.Properties"
	adapterIface     = "org.bluez.Adapter1"

	appBasePath = dbus.ObjectPath("/wcommd/gatt")
)

// charDef is the static protocol shape of one characteristic (UUID,
// declared flags) plus the Handlers methods that drive its read/write
// side. Building every characteristic object from one table keeps the
// eight wire characteristics in §6 from turning into eight
// near-identical Go types, the way mgr_linux.go builds server and
// client roles from one profile type.
type charDef struct {
	name   string
	uuid   string
	flags  []string
	read   func(*Handlers, *Session) ([]byte, error)
	write  func(*Handlers, *Session, []byte) error
	notify bool
}

var scanServiceChars = []charDef{
	{name: "ScanControl", uuid: ScanControlCharUUID, flags: []string{"write"}, write: func(h *Handlers, s *Session, v []byte) error { return h.HandleScanControlWrite(s, v) }},
	{name: "ScanState", uuid: ScanStateCharUUID, flags: []string{"read", "notify"}, read: func(h *Handlers, s *Session) ([]byte, error) { return h.HandleScanStateRead() }, notify: true},
	{name: "ScanResults", uuid: ScanResultsCharUUID, flags: []string{"read"}, read: func(h *Handlers, s *Session) ([]byte, error) { return h.HandleScanResultsRead(s) }},
}

var connectServiceChars = []charDef{
	{name: "ConnectSSID", uuid: ConnectSSIDCharUUID, flags: []string{"write"}, write: func(h *Handlers, s *Session, v []byte) error { return h.HandleSSIDWrite(s, v) }},
	{name: "ConnectPSK", uuid: ConnectPSKCharUUID, flags: []string{"write"}, write: func(h *Handlers, s *Session, v []byte) error { return h.HandlePSKWrite(s, v) }},
	{name: "ConnectControl", uuid: ConnectControlCharUUID, flags: []string{"write"}, write: func(h *Handlers, s *Session, v []byte) error { return h.HandleConnectControlWrite(s, v) }},
	{name: "ConnectState", uuid: ConnectStateCharUUID, flags: []string{"read", "notify"}, read: func(h *Handlers, s *Session) ([]byte, error) { return h.HandleConnectStateRead() }, notify: true},
}

var authServiceChars = []charDef{
	{name: "AuthKey", uuid: AuthKeyCharUUID, flags: []string{"write"}, write: func(h *Handlers, s *Session, v []byte) error { return h.HandleAuthWrite(v) }},
}

// gattService tracks one exported org.bluez.GattService1 object.
type gattService struct {
	path dbus.ObjectPath
	uuid string
}

// gattCharacteristic is the exported org.bluez.GattCharacteristic1 (+
// org.freedesktop.DBus.Properties) object for one charDef.
type gattCharacteristic struct {
	def         charDef
	path        dbus.ObjectPath
	servicePath dbus.ObjectPath
	srv         *Server
}

func (c *gattCharacteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	sess := c.srv.sessionFor(devicePathFromOptions(options))
	if c.def.read == nil {
		return nil, dbusErr(ErrFailed)
	}
	v, err := c.def.read(c.srv.handlers, sess)
	if err != nil {
		return nil, dbusErr(err)
	}
	return v, nil
}

func (c *gattCharacteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	sess := c.srv.sessionFor(devicePathFromOptions(options))
	if c.def.write == nil {
		return dbusErr(ErrFailed)
	}
	if err := c.def.write(c.srv.handlers, sess, value); err != nil {
		return dbusErr(err)
	}
	return nil
}

func (c *gattCharacteristic) StartNotify() *dbus.Error { return nil }
func (c *gattCharacteristic) StopNotify() *dbus.Error  { return nil }

func (c *gattCharacteristic) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	props := c.properties()
	if v, ok := props[name]; ok {
		return v, nil
	}
	return dbus.Variant{}, dbusErr(ErrFailed)
}

func (c *gattCharacteristic) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	return c.properties(), nil
}

func (c *gattCharacteristic) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return dbusErr(ErrFailed)
}

func (c *gattCharacteristic) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"UUID":    dbus.MakeVariant(c.def.uuid),
		"Service": dbus.MakeVariant(c.servicePath),
		"Flags":   dbus.MakeVariant(c.def.flags),
	}
}

// application is the exported GATT application root, implementing
// org.freedesktop.DBus.ObjectManager so BlueZ can enumerate every
// service/characteristic in one GetManagedObjects call, the same
// pattern mgr_linux.go's snapshotSPPDevices consumes from the BlueZ
// side rather than serves.
type application struct {
	srv *Server
}

func (a *application) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	out := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	for _, svc := range a.srv.services {
		out[svc.path] = map[string]map[string]dbus.Variant{
			gattServiceIface: {
				"UUID":    dbus.MakeVariant(svc.uuid),
				"Primary": dbus.MakeVariant(true),
			},
		}
	}
	for _, ch := range a.srv.characteristics {
		out[ch.path] = map[string]map[string]dbus.Variant{
			gattCharIface: ch.properties(),
		}
	}
	return out, nil
}

// Server exports the three GATT services and registers them with
// BlueZ's GattManager1, and fans out commissioning notifications as
// org.freedesktop.DBus.Properties.PropertiesChanged signals on the
// corresponding State characteristics.
type Server struct {
	handlers *Handlers
	service  *commissioning.CommissioningService
	log      zerolog.Logger

	adapterPath dbus.ObjectPath

	bus             *dbus.Conn
	services        []*gattService
	characteristics []*gattCharacteristic
	scanStatePath   dbus.ObjectPath
	connStatePath   dbus.ObjectPath

	mu       sync.Mutex
	sessions map[dbus.ObjectPath]*Session

	cleanup []func()
}

// NewServer constructs a Server bound to adapterPath (e.g. "/org/bluez/hci0").
func NewServer(service *commissioning.CommissioningService, adapterPath string, log zerolog.Logger) *Server {
	return &Server{
		handlers:    NewHandlers(service, log),
		service:     service,
		log:         log.With().Str("component", "ble_gatt_server").Logger(),
		adapterPath: dbus.ObjectPath(adapterPath),
		sessions:    make(map[dbus.ObjectPath]*Session),
	}
}

// Start connects to the system bus, exports the application, and
// registers it with BlueZ. Notification fan-out begins immediately.
func (srv *Server) Start(ctx context.Context) error {
	bus, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("ble: connect system bus: %w", err)
	}
	srv.bus = bus
	srv.cleanup = append(srv.cleanup, func() { bus.Close() })

	if err := PowerOnAdapter(bus, string(srv.adapterPath)); err != nil {
		return err
	}

	srv.buildObjects()
	if err := srv.exportObjects(); err != nil {
		return err
	}

	mgr := bus.Object(bluezService, srv.adapterPath)
	call := mgr.Call(gattManagerIface+".RegisterApplication", 0, appBasePath, map[string]dbus.Variant{})
	if call.Err != nil {
		return fmt.Errorf("ble: RegisterApplication: %w", call.Err)
	}
	srv.cleanup = append(srv.cleanup, func() {
		_ = mgr.Call(gattManagerIface+".UnregisterApplication", 0, appBasePath).Err
	})

	sub := srv.service.Subscribe()
	go srv.watchNotifications(ctx, sub)
	srv.cleanup = append(srv.cleanup, func() { srv.service.Unsubscribe(sub) })

	return nil
}

// Stop unregisters the application and closes the bus connection, in
// reverse order of registration (mgr_linux.go's Close idiom).
func (srv *Server) Stop() error {
	srv.mu.Lock()
	cleanup := srv.cleanup
	srv.cleanup = nil
	srv.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		if cleanup[i] != nil {
			cleanup[i]()
		}
	}
	return nil
}

func (srv *Server) buildObjects() {
	srv.addService(AuthServiceUUID, "auth", authServiceChars)
	scanSvcPath, scanChars := srv.addService(ScanServiceUUID, "scan", scanServiceChars)
	connSvcPath, connChars := srv.addService(ConnectServiceUUID, "connect", connectServiceChars)

	for _, ch := range scanChars {
		if ch.def.name == "ScanState" {
			srv.scanStatePath = ch.path
		}
	}
	for _, ch := range connChars {
		if ch.def.name == "ConnectState" {
			srv.connStatePath = ch.path
		}
	}
	_ = scanSvcPath
	_ = connSvcPath
}

func (srv *Server) addService(uuid, slug string, defs []charDef) (dbus.ObjectPath, []*gattCharacteristic) {
	svcPath := dbus.ObjectPath(string(appBasePath) + "/service_" + slug)
	svc := &gattService{path: svcPath, uuid: uuid}
	srv.services = append(srv.services, svc)

	chars := make([]*gattCharacteristic, 0, len(defs))
	for i, def := range defs {
		chPath := dbus.ObjectPath(fmt.Sprintf("%s/char_%d", svcPath, i))
		ch := &gattCharacteristic{def: def, path: chPath, servicePath: svcPath, srv: srv}
		srv.characteristics = append(srv.characteristics, ch)
		chars = append(chars, ch)
	}
	return svcPath, chars
}

func (srv *Server) exportObjects() error {
	if err := srv.bus.Export(&application{srv: srv}, appBasePath, objManagerIface); err != nil {
		return fmt.Errorf("ble: export application: %w", err)
	}
	for _, svc := range srv.services {
		s := &gattServiceObject{svc: svc}
		if err := srv.bus.Export(s, svc.path, propsIface); err != nil {
			return fmt.Errorf("ble: export service %s: %w", svc.path, err)
		}
	}
	for _, ch := range srv.characteristics {
		if err := srv.bus.Export(ch, ch.path, gattCharIface); err != nil {
			return fmt.Errorf("ble: export characteristic %s: %w", ch.path, err)
		}
		if err := srv.bus.Export(ch, ch.path, propsIface); err != nil {
			return fmt.Errorf("ble: export characteristic properties %s: %w", ch.path, err)
		}
	}
	return nil
}

// gattServiceObject exposes org.freedesktop.DBus.Properties for a
// gattService (GattService1 has no methods of its own, only
// properties).
type gattServiceObject struct {
	svc *gattService
}

func (s *gattServiceObject) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	props, _ := s.GetAll(iface)
	if v, ok := props[name]; ok {
		return v, nil
	}
	return dbus.Variant{}, dbusErr(ErrFailed)
}

func (s *gattServiceObject) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	return map[string]dbus.Variant{
		"UUID":    dbus.MakeVariant(s.svc.uuid),
		"Primary": dbus.MakeVariant(true),
	}, nil
}

func (s *gattServiceObject) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return dbusErr(ErrFailed)
}

// sessionFor returns the Session for devicePath, creating one on first
// contact (§3: PendingCredentials is owned by the BLE session that
// accumulated them).
func (srv *Server) sessionFor(devicePath dbus.ObjectPath) *Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if sess, ok := srv.sessions[devicePath]; ok {
		return sess
	}
	sess := NewSession()
	srv.sessions[devicePath] = sess
	return sess
}

// CloseSession discards devicePath's session state without committing
// any pending credentials (§3: cleared on session teardown).
func (srv *Server) CloseSession(devicePath dbus.ObjectPath) {
	srv.mu.Lock()
	sess, ok := srv.sessions[devicePath]
	delete(srv.sessions, devicePath)
	srv.mu.Unlock()
	if ok {
		srv.handlers.OnSessionClosed(sess)
	}
}

func devicePathFromOptions(options map[string]dbus.Variant) dbus.ObjectPath {
	v, ok := options["device"]
	if !ok {
		return ""
	}
	p, _ := v.Value().(dbus.ObjectPath)
	return p
}

func dbusErr(err error) *dbus.Error {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return &dbus.Error{Name: "org.bluez.Error.NotAuthorized"}
	case errors.Is(err, ErrInvalidValueLength):
		return &dbus.Error{Name: "org.bluez.Error.InvalidValueLength"}
	default:
		return &dbus.Error{Name: "org.bluez.Error.Failed"}
	}
}

// watchNotifications fans out scan/connection state transitions as
// PropertiesChanged signals on the corresponding State characteristic,
// the BlueZ convention clients subscribed via StartNotify rely on.
func (srv *Server) watchNotifications(ctx context.Context, sub *commissioning.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.Events:
			if !ok {
				return
			}
			switch ev := n.(type) {
			case commissioning.ScanStateChanged:
				srv.emitValueChanged(srv.scanStatePath, []byte{scanWireByte(ev.State)})
			case commissioning.ConnectionStateChanged:
				srv.emitValueChanged(srv.connStatePath, []byte{connWireByte(ev.State)})
			}
		}
	}
}

func (srv *Server) emitValueChanged(path dbus.ObjectPath, value []byte) {
	if path == "" || srv.bus == nil {
		return
	}
	changed := map[string]dbus.Variant{"Value": dbus.MakeVariant(value)}
	err := srv.bus.Emit(path, propsIface+".PropertiesChanged", gattCharIface, changed, []string{})
	if err != nil {
		srv.log.Warn().Err(err).Str("path", string(path)).Msg("failed to emit PropertiesChanged")
	}
}

func scanWireByte(state string) byte {
	switch state {
	case "scanning":
		return 1
	case "finished":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

func connWireByte(state string) byte {
	switch state {
	case "connecting":
		return 1
	case "connected":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}
