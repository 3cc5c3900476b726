package state

import (
	"fmt"
	"net/netip"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func NetworkConfigValidator(cfg *NetworkCfg) error {
	if len(cfg.Peers) == 0 {
		return fmt.Errorf("no peers defined")
	}
	addrs := make(map[netip.AddrPort]NodeId)
	for _, id := range cfg.GetNodes() {
		if err := NameValidator(string(id)); err != nil {
			return err
		}
		addr := cfg.Peers[id]
		if !addr.IsValid() {
			return fmt.Errorf("peer %s has an invalid address", id)
		}
		if other, ok := addrs[addr]; ok {
			return fmt.Errorf("peers %s and %s share address %s", other, id, addr)
		}
		addrs[addr] = id
	}
	for from, tbl := range cfg.Links {
		if _, ok := cfg.Peers[from]; !ok {
			return fmt.Errorf("node %s not defined", from)
		}
		for to, cost := range tbl {
			if _, ok := cfg.Peers[to]; !ok {
				return fmt.Errorf("node %s not defined", to)
			}
			if from == to {
				return fmt.Errorf("node %s links to itself", from)
			}
			if cost < 1 || cost >= INFM {
				return fmt.Errorf("link %s, %s has invalid cost %d", from, to, cost)
			}
			if rev, ok := cfg.Links[to][from]; ok && rev != cost {
				return fmt.Errorf("conflicting costs for link %s, %s: %d and %d", from, to, cost, rev)
			}
		}
	}
	return nil
}

func LocalConfigValidator(cfg *LocalCfg, network *NetworkCfg) error {
	if err := NameValidator(string(cfg.Id)); err != nil {
		return err
	}
	if _, ok := network.Peers[cfg.Id]; !ok {
		return fmt.Errorf("node %s is not in the address book", cfg.Id)
	}
	if cfg.SegmentSize < 1 || cfg.SegmentSize > MaxSegmentSize {
		return fmt.Errorf("segment size %d must be within [1, %d]", cfg.SegmentSize, MaxSegmentSize)
	}
	if cfg.WindowSize < 1 {
		return fmt.Errorf("window size %d must be positive", cfg.WindowSize)
	}
	if cfg.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout %s must be positive", cfg.AckTimeout)
	}
	if cfg.MaxRetries != nil && *cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries %d must not be negative", *cfg.MaxRetries)
	}
	if cfg.HopLimit < 1 {
		return fmt.Errorf("hop limit %d must be positive", cfg.HopLimit)
	}
	for name, p := range map[string]*float64{"drop": cfg.DropProbability, "corrupt": cfg.CorruptProbability} {
		if p != nil && (*p < 0 || *p > 1) {
			return fmt.Errorf("%s probability %v must be within [0, 1]", name, *p)
		}
	}
	if cfg.CostUpdateInterval <= 0 {
		return fmt.Errorf("cost update interval %s must be positive", cfg.CostUpdateInterval)
	}
	if cfg.MaxCostDelta < 0 {
		return fmt.Errorf("max cost delta %d must not be negative", cfg.MaxCostDelta)
	}
	return nil
}
