package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"firestige.xyz/upflow/internal/core"
)

// StaticUE describes one pre-provisioned subscriber tunnel. TEIDs are
// written in the file as plain integers (YAML accepts 0x notation).
type StaticUE struct {
	UE      string `yaml:"ue"`
	ENBAddr string `yaml:"enb_addr"`
	ENBTEID uint32 `yaml:"enb_teid"`
	EPCAddr string `yaml:"epc_addr"`
	EPCTEID uint32 `yaml:"epc_teid"`
}

type staticUEFile struct {
	UEs []StaticUE `yaml:"ues"`
}

// LoadStaticUEs reads a provisioning file and resolves it into tunnel
// entries keyed by subscriber address.
func LoadStaticUEs(path string) (map[core.IPv4Address]core.GTPv1UTunnelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read UE file: %v", core.ErrIO, err)
	}
	var file staticUEFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse UE file %s: %v", core.ErrConfigInvalid, path, err)
	}

	out := make(map[core.IPv4Address]core.GTPv1UTunnelInfo, len(file.UEs))
	for i, entry := range file.UEs {
		ue, err := core.ParseIPv4Address(entry.UE)
		if err != nil {
			return nil, fmt.Errorf("%w: ue entry %d: %v", core.ErrConfigInvalid, i, err)
		}
		enb, err := core.ParseIPv4Address(entry.ENBAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: ue entry %d enb_addr: %v", core.ErrConfigInvalid, i, err)
		}
		epc, err := core.ParseIPv4Address(entry.EPCAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: ue entry %d epc_addr: %v", core.ErrConfigInvalid, i, err)
		}
		if entry.ENBTEID == 0 || entry.EPCTEID == 0 {
			return nil, fmt.Errorf("%w: ue entry %d: TEIDs must be non-zero", core.ErrConfigInvalid, i)
		}
		out[ue] = core.GTPv1UTunnelInfo{
			ENB: core.NewGTPv1UEndPoint(enb, core.TEID(entry.ENBTEID)),
			EPC: core.NewGTPv1UEndPoint(epc, core.TEID(entry.EPCTEID)),
		}
	}
	return out, nil
}
