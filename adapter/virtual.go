package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/roffe/slcan"
)

func init() {
	if err := Register(&AdapterInfo{
		Name:        "Virtual",
		Description: "In-memory bus shared by all virtual adapters of the process",
		New: func(cfg *Config) (slcan.Bus, error) {
			return DefaultNetwork.Node(cfg), nil
		},
	}); err != nil {
		panic(err)
	}
}

// DefaultNetwork backs adapters created through the registry.
var DefaultNetwork = NewVirtualNetwork()

// VirtualNetwork is an in-memory CAN bus. A frame sent by one node reaches
// every other open node running at the same bitrate.
type VirtualNetwork struct {
	mu    sync.RWMutex
	nodes map[*Virtual]struct{}
}

func NewVirtualNetwork() *VirtualNetwork {
	return &VirtualNetwork{
		nodes: make(map[*Virtual]struct{}),
	}
}

// Node creates a bus attached to the network. It takes part in traffic once
// opened.
func (n *VirtualNetwork) Node(cfg *Config) *Virtual {
	return &Virtual{
		BaseAdapter: NewBaseAdapter("Virtual", cfg),
		network:     n,
	}
}

func (n *VirtualNetwork) join(v *Virtual) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[v] = struct{}{}
}

func (n *VirtualNetwork) leave(v *Virtual) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, v)
}

func (n *VirtualNetwork) broadcast(from *Virtual, frame *slcan.CANFrame) int {
	bitrate := from.config().Bitrate
	n.mu.RLock()
	defer n.mu.RUnlock()
	var delivered int
	for node := range n.nodes {
		if node == from || node.config().Bitrate != bitrate {
			continue
		}
		if node.deliver(frame.Clone()) {
			delivered++
		}
	}
	return delivered
}

type Virtual struct {
	*BaseAdapter
	network *VirtualNetwork
}

func (v *Virtual) Open(_ context.Context, cfg slcan.BusConfig) error {
	if _, err := v.start(cfg); err != nil {
		return err
	}
	v.network.join(v)
	v.debug("open at " + cfg.Bitrate.String())
	return nil
}

func (v *Virtual) Close() error {
	v.network.leave(v)
	if err := v.stop(); err != nil {
		return err
	}
	v.debug("closed")
	return nil
}

// Send delivers the frame to the other nodes. A virtual bus never blocks so
// the timeout is unused.
func (v *Virtual) Send(_ context.Context, frame *slcan.CANFrame, _ time.Duration) error {
	if !v.isOpen() {
		return slcan.ErrBusClosed
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	n := v.network.broadcast(v, frame)
	if v.cfg.Debug {
		v.debug(">> " + frame.String())
		if n == 0 {
			v.debug("no node accepted the frame")
		}
	}
	return nil
}

// Inject queues a frame as if another node had sent it. It reports whether
// the frame passed the acceptance filter.
func (v *Virtual) Inject(frame *slcan.CANFrame) bool {
	return v.deliver(frame.Clone())
}
