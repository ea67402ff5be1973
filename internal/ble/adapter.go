package ble

import (
	"fmt"

	dbus "github.com/godbus/dbus/v5"
)

// PowerOnAdapter ensures the adapter at adapterPath is powered and
// discoverable before the GATT application is registered, the
// prerequisite BlueZ imposes on RegisterApplication succeeding. Uses
// the same Properties.Set-by-Call idiom mgr_linux.go uses for
// Properties.Get.
func PowerOnAdapter(bus *dbus.Conn, adapterPath string) error {
	obj := bus.Object(bluezService, dbus.ObjectPath(adapterPath))
	if call := obj.Call(propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(true)); call.Err != nil {
		return fmt.Errorf("ble: power on adapter: %w", call.Err)
	}
	if call := obj.Call(propsIface+".Set", 0, adapterIface, "Discoverable", dbus.MakeVariant(true)); call.Err != nil {
		return fmt.Errorf("ble: set discoverable: %w", call.Err)
	}
	return nil
}
