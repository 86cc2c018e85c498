package models

import (
	"sync"

	"github.com/moyoez/localsend-session/types"
)

var (
	selfDeviceMu sync.RWMutex
	selfDevice   *types.SelfDevice
)

// SetSelfDevice sets the local identity answered on /info and sent in send-requests.
func SetSelfDevice(device *types.SelfDevice) {
	selfDeviceMu.Lock()
	defer selfDeviceMu.Unlock()
	selfDevice = device
}

// GetSelfDevice returns a copy of the local identity, or an empty one when unset.
func GetSelfDevice() types.SelfDevice {
	selfDeviceMu.RLock()
	defer selfDeviceMu.RUnlock()
	if selfDevice == nil {
		return types.SelfDevice{}
	}
	return *selfDevice
}
