//nolint:prealloc
package cmdline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/exec"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

// NewTcCmdLineImpl creates a new instance of TcCmdLineImpl
func NewTcCmdLineImpl(dev string, log klog.Logger, executor exec.Interface) *TcCmdLineImpl {
	return &TcCmdLineImpl{
		netDev:   dev,
		log:      log,
		executor: executor,
		cmdline:  "tc",
		options:  []string{"-json"},
	}
}

// TcCmdLineImpl is a concrete implementation of TC interface utilizing TC command line
type TcCmdLineImpl struct {
	netDev   string
	log      klog.Logger
	executor exec.Interface

	cmdline string
	options []string
}

// execTcCmdNoOutput executes tc command with args, returning error if occurred
func (t *TcCmdLineImpl) execTcCmdNoOutput(args []string) error {
	finalArgs := append(append([]string{}, t.options...), args...)
	t.log.V(10).Info("executing", "cmd", t.cmdline, "args", finalArgs)
	cmd := t.executor.Command(t.cmdline, finalArgs...)
	out, err := cmd.CombinedOutput()
	t.log.V(10).Info("exec result", "err", err)
	if err != nil {
		return errors.Wrapf(err, "%s %s: %s", t.cmdline, strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}

// execTcCmd executes tc command with args, returning stdout output and error
func (t *TcCmdLineImpl) execTcCmd(args []string) ([]byte, error) {
	finalArgs := append(append([]string{}, t.options...), args...)
	t.log.V(10).Info("executing", "cmd", t.cmdline, "args", finalArgs)
	cmd := t.executor.Command(t.cmdline, finalArgs...)
	out, err := cmd.Output()
	t.log.V(10).Info("exec result", "err", err, "out", string(out))
	return out, err
}

// QDiscAdd implements TC interface
func (t *TcCmdLineImpl) QDiscAdd(qdisc types.QDisc) error {
	args := []string{"qdisc", "add", "dev", t.netDev}
	args = append(args, qdisc.GenCmdLineArgs()...)
	return t.execTcCmdNoOutput(args)
}

// QDiscDel implements TC interface, the qdisc is identified by its parent and handle
func (t *TcCmdLineImpl) QDiscDel(qdisc types.QDisc) error {
	args := []string{"qdisc", "del", "dev", t.netDev}
	args = append(args, qdisc.Attrs().GenCmdLineArgs()...)
	return t.execTcCmdNoOutput(args)
}

// QDiscList implements TC interface
func (t *TcCmdLineImpl) QDiscList() ([]types.QDisc, error) {
	args := []string{"qdisc", "list", "dev", t.netDev}
	out, err := t.execTcCmd(args)
	if err != nil {
		return nil, err
	}
	// parse output and return objects
	var cQdiscs []cQDisc
	err = json.Unmarshal(out, &cQdiscs)
	if err != nil {
		return nil, err
	}

	var objs []types.QDisc
	for _, q := range cQdiscs {
		handle, err := parseMajorMinor(q.Handle)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to parse qdisc Handle")
		}
		parent := types.HandleRoot
		if !q.Root && q.Parent != nil {
			parent, err = parseMajorMinor(*q.Parent)
			if err != nil {
				return nil, errors.Wrap(err, "Failed to parse qdisc Parent")
			}
		}

		if q.Kind != string(types.QDiscHTBType) {
			attrs := types.NewQDiscAttrsBuilder().WithParent(parent).WithHandle(handle).Build()
			objs = append(objs, types.NewGenericQdisc(attrs, types.QDiscType(q.Kind)))
			continue
		}

		qb := types.NewHTBQDiscBuilder().WithParent(parent).WithHandle(handle)
		if len(q.Options) > 0 {
			var opts cHTBQDiscOptions
			if err := json.Unmarshal(q.Options, &opts); err != nil {
				return nil, errors.Wrap(err, "Failed to parse htb qdisc options")
			}
			defcls, err := rawToDefaultClass(opts.Default)
			if err != nil {
				return nil, err
			}
			qb.WithDefaultClass(defcls)
			if opts.R2Q != nil {
				qb.WithR2Q(*opts.R2Q)
			}
		}
		objs = append(objs, qb.Build())
	}
	return objs, nil
}

// ClassAdd implements TC interface
func (t *TcCmdLineImpl) ClassAdd(class types.Class) error {
	args := []string{"class", "add", "dev", t.netDev}
	args = append(args, class.GenCmdLineArgs()...)
	return t.execTcCmdNoOutput(args)
}

// ClassList implements TC interface, only htb classes are returned
func (t *TcCmdLineImpl) ClassList() ([]types.Class, error) {
	args := []string{"class", "list", "dev", t.netDev}
	out, err := t.execTcCmd(args)
	if err != nil {
		return nil, err
	}
	var cClasses []cClass
	err = json.Unmarshal(out, &cClasses)
	if err != nil {
		return nil, err
	}

	var objs []types.Class
	for _, c := range cClasses {
		if c.Kind != string(types.ClassHTBType) {
			continue
		}
		classID, err := parseMajorMinor(c.Handle)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to parse class Handle")
		}
		// classes attached directly to the qdisc are reported as root
		parent := types.MakeHandle(types.HandleMajor(classID), 0)
		if !c.Root && c.Parent != nil {
			parent, err = parseMajorMinor(*c.Parent)
			if err != nil {
				return nil, errors.Wrap(err, "Failed to parse class Parent")
			}
		}
		cb := types.NewHTBClassBuilder().
			WithParent(parent).
			WithClassID(classID).
			WithRate(c.Rate * 8).
			WithCeil(c.Ceil * 8)
		if c.Prio != nil {
			cb.WithPrio(*c.Prio)
		}
		objs = append(objs, cb.Build())
	}
	return objs, nil
}

func (t *TcCmdLineImpl) parentArgs(qdisc types.QDisc) []string {
	if qdisc.Attrs().Handle == nil {
		return qdisc.Attrs().GenCmdLineArgs()
	}
	return []string{"parent", types.FormatHandle(*qdisc.Attrs().Handle)}
}

// FilterAdd implements TC interface
func (t *TcCmdLineImpl) FilterAdd(qdisc types.QDisc, filter types.Filter) error {
	args := []string{"filter", "add", "dev", t.netDev}
	args = append(args, t.parentArgs(qdisc)...)
	args = append(args, filter.GenCmdLineArgs()...)
	return t.execTcCmdNoOutput(args)
}

// FilterList implements TC interface
func (t *TcCmdLineImpl) FilterList(qdisc types.QDisc) ([]types.Filter, error) {
	args := []string{"filter", "list", "dev", t.netDev}
	args = append(args, t.parentArgs(qdisc)...)
	out, err := t.execTcCmd(args)
	if err != nil {
		return nil, err
	}
	// parse output and return objects
	var cFilters []cFilter
	err = json.Unmarshal(out, &cFilters)
	if err != nil {
		return nil, err
	}

	var objs []types.Filter
	for _, f := range cFilters {
		// skip filters with no Options
		if len(f.Options) == 0 {
			continue
		}
		var filter types.Filter
		switch f.Kind {
		case string(types.FilterKindFlower):
			filter, err = t.parseFlower(f)
		case string(types.FilterKindU32):
			filter, err = t.parseU32(f)
		default:
			return nil, fmt.Errorf("unexpected filter Kind: %s", f.Kind)
		}
		if err != nil {
			return nil, err
		}
		if filter != nil {
			objs = append(objs, filter)
		}
	}
	return objs, nil
}

func (t *TcCmdLineImpl) parseFlower(f cFilter) (types.Filter, error) {
	var opts cFlowerOptions
	if err := json.Unmarshal(f.Options, &opts); err != nil {
		return nil, errors.Wrap(err, "failed to parse flower options")
	}

	fb := types.NewFlowerFilterBuilder().
		WithProtocol(sToFilterProtocol(f.Protocol)).
		WithPriority(f.Priority).
		WithHandle(opts.Handle)

	if opts.ClassID != nil {
		classID, err := parseMajorMinor(*opts.ClassID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse classid: %s", *opts.ClassID)
		}
		fb.WithClassID(classID)
	}
	if opts.Keys.VlanEthType != nil {
		fb.WithMatchKeyVlanEthType(sToFlowerVlanEthType(*opts.Keys.VlanEthType))
	}
	if opts.Keys.IPProto != nil {
		fb.WithMatchKeyIPProto(sToFlowerIPProto(*opts.Keys.IPProto))
	}
	if opts.Keys.SrcIP != nil {
		ipn, err := utils.IPToIPNet(*opts.Keys.SrcIP)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse src IP: %s", *opts.Keys.SrcIP)
		}
		fb.WithMatchKeySrcIP(ipn)
	}
	if opts.Keys.DstIP != nil {
		ipn, err := utils.IPToIPNet(*opts.Keys.DstIP)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse dest IP: %s", *opts.Keys.DstIP)
		}
		fb.WithMatchKeyDstIP(ipn)
	}
	if opts.Keys.SrcPort != nil {
		fb.WithMatchKeySrcPort(*opts.Keys.SrcPort)
	}
	if opts.Keys.DstPort != nil {
		fb.WithMatchKeyDstPort(*opts.Keys.DstPort)
	}

	for _, a := range opts.Actions {
		act, err := cActionToAction(a)
		if err != nil {
			return nil, err
		}
		fb.WithAction(act)
	}
	return fb.Build(), nil
}

// parseU32 parses a u32 filter entry, hash table entries (no flowid) are skipped
func (t *TcCmdLineImpl) parseU32(f cFilter) (types.Filter, error) {
	var opts cU32Options
	if err := json.Unmarshal(f.Options, &opts); err != nil {
		return nil, errors.Wrap(err, "failed to parse u32 options")
	}
	if opts.FlowID == nil {
		return nil, nil
	}

	keys := make([]types.U32Key, 0, len(opts.Keys))
	for _, k := range opts.Keys {
		key, err := cU32KeyToU32Key(k)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	spec, err := types.NewU32SpecFromKeys(keys)
	if err != nil {
		return nil, err
	}
	classID, err := parseMajorMinor(*opts.FlowID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse flowid: %s", *opts.FlowID)
	}

	filter := types.NewU32FilterBuilder().
		WithProtocol(sToFilterProtocol(f.Protocol)).
		WithPriority(f.Priority).
		WithClassID(classID).
		Build()
	filter.Match = spec

	for _, a := range opts.Actions {
		act, err := cActionToAction(a)
		if err != nil {
			return nil, err
		}
		filter.Actions = append(filter.Actions, act)
	}
	return filter, nil
}

// parseMajorMinor parses TC string Handle and Parent. for a given format the following output is expected as depicted
// below.
//
//	"root" -> 0xffffffff
//	"abcd" -> int32(0xabcd)
//	"abcdef01" -> int32(0xabcdef01)
//	"abcd:" -> int32(0xabcd0000)
//	"abcd:ef01" -> int32(0xabcdef01)
//	":ef01" -> int32(0x0000ef01)
func parseMajorMinor(mm string) (uint32, error) {
	if mm == "root" {
		return types.HandleRoot, nil
	}
	parsedMm := strings.Split(mm, ":")

	switch len(parsedMm) {
	case 1:
		p, err := strconv.ParseUint(parsedMm[0], 16, 32)
		return uint32(p), err
	case 2:
		var major, minor uint64
		var err error
		if len(parsedMm[0]) > 0 {
			major, err = strconv.ParseUint(parsedMm[0], 16, 16)
			if err != nil {
				return 0, err
			}
		}
		if len(parsedMm[1]) > 0 {
			// we have minor
			minor, err = strconv.ParseUint(parsedMm[1], 16, 16)
			if err != nil {
				return 0, err
			}
		}
		return types.MakeHandle(uint16(major), uint16(minor)), nil
	default:
		return 0, fmt.Errorf("failed to parse MajorMinor string: %s", mm)
	}
}
