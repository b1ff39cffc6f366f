package port

import (
	"errors"
	"fmt"

	"github.com/opd-ai/ptpcore/bmca"
	"github.com/opd-ai/ptpcore/wire"
)

var (
	// ErrConfig indicates an invalid port configuration, rejected at
	// construction.
	ErrConfig = errors.New("invalid port configuration")

	// ErrClosed indicates an operation on a port that has been shut
	// down.
	ErrClosed = errors.New("port closed")
)

// DelayMechanism selects how a port measures path delay.
type DelayMechanism uint8

const (
	// E2E measures the path to the master with the DelayReq/DelayResp
	// exchange.
	E2E DelayMechanism = iota

	// P2P measures the link to the immediate neighbor with the peer
	// delay exchange, independent of the master hierarchy.
	P2P
)

func (d DelayMechanism) String() string {
	switch d {
	case E2E:
		return "E2E"
	case P2P:
		return "P2P"
	}
	return fmt.Sprintf("DelayMechanism(%d)", uint8(d))
}

// defaultAnnounceReceiptTimeout is the number of missed announce intervals
// after which the elected master is presumed gone.
const defaultAnnounceReceiptTimeout = 3

// Config is the per-port protocol configuration, fixed at construction.
type Config struct {
	// Number is the port number within the instance, starting at 1.
	Number uint16

	// LogAnnounceInterval is the log2 seconds between Announce
	// emissions in the master role and the base of the receipt timeout
	// window.
	LogAnnounceInterval wire.LogInterval

	// AnnounceReceiptTimeout is the number of announce intervals
	// without an Announce after which the port re-elects. Zero selects
	// the default of 3.
	AnnounceReceiptTimeout uint8

	// LogSyncInterval is the log2 seconds between Sync emissions in the
	// master role.
	LogSyncInterval wire.LogInterval

	// LogMinDelayReqInterval is the log2 seconds between delay requests
	// in the slave role, and between peer delay requests on a P2P port.
	LogMinDelayReqInterval wire.LogInterval

	// DelayMechanism selects E2E or P2P delay measurement.
	DelayMechanism DelayMechanism

	// MasterOnly keeps the port out of the following states; when
	// outranked it parks in Passive instead.
	MasterOnly bool

	// Acceptable vetoes masters regardless of election rank. Nil admits
	// every candidate.
	Acceptable bmca.AcceptableMasterList

	// SPI selects the security association used to sign outbound
	// messages; inbound messages must then verify against the provider.
	// Nil disables message authentication.
	SPI *uint8
}

func (c *Config) validate() error {
	if c.Number == 0 {
		return fmt.Errorf("%w: port number must be non-zero", ErrConfig)
	}
	if c.DelayMechanism != E2E && c.DelayMechanism != P2P {
		return fmt.Errorf("%w: unknown delay mechanism %d", ErrConfig, uint8(c.DelayMechanism))
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.AnnounceReceiptTimeout == 0 {
		c.AnnounceReceiptTimeout = defaultAnnounceReceiptTimeout
	}
	if c.Acceptable == nil {
		c.Acceptable = bmca.AcceptAll{}
	}
	return c
}
