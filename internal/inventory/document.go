package inventory

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Document is an Ansible YAML inventory rooted at the "all" group.
type Document struct {
	All Group `yaml:"all" json:"all"`
}

// Group is an inventory group.
type Group struct {
	Hosts    map[string]Host   `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	Vars     map[string]any    `yaml:"vars,omitempty" json:"vars,omitempty"`
	Children map[string]*Group `yaml:"children,omitempty" json:"children,omitempty"`
}

// Host holds per-host variables.
type Host map[string]any

// Well-known host variables.
const (
	VarAnsibleHost = "ansible_host"
	VarManaged     = "is_managed"
	VarLBDNSName   = "lb_dns_name"
	VarDBPort      = "db_port"
)

// Group returns the child group name, or nil.
func (d *Document) Group(name string) *Group {
	if d == nil || d.All.Children == nil {
		return nil
	}
	return d.All.Children[name]
}

// Target is a flattened view of one host.
type Target struct {
	Name    string
	Group   string
	Address string
	Managed bool
	Vars    Host
}

// Targets lists every host, sorted by group then name. The address is
// ansible_host, falling back to lb_dns_name for load balancers.
func (d *Document) Targets() []Target {
	var targets []Target
	for _, groupName := range lo.Keys(d.All.Children) {
		group := d.All.Children[groupName]
		if group == nil {
			continue
		}
		for name, host := range group.Hosts {
			addr, _ := host[VarAnsibleHost].(string)
			if addr == "" {
				addr, _ = host[VarLBDNSName].(string)
			}
			managed, _ := host[VarManaged].(bool)
			targets = append(targets, Target{
				Name:    name,
				Group:   groupName,
				Address: addr,
				Managed: managed,
				Vars:    host,
			})
		}
	}
	slices.SortFunc(targets, func(a, b Target) int {
		if a.Group != b.Group {
			return cmp.Compare(a.Group, b.Group)
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return targets
}

// ConnectableHosts returns the sorted names of hosts reachable over SSH.
// Managed services (database, load balancer) are excluded.
func (d *Document) ConnectableHosts() []string {
	hosts := lo.FilterMap(d.Targets(), func(t Target, _ int) (string, bool) {
		return t.Name, !t.Managed
	})
	slices.Sort(hosts)
	return hosts
}

// Validate checks the structural expectations the playbooks rely on: a
// non-empty webservers group whose hosts all have an address.
func Validate(d *Document) error {
	if d == nil {
		return fmt.Errorf("inventory is empty")
	}
	web := d.Group(GroupWeb)
	if web == nil || len(web.Hosts) == 0 {
		return fmt.Errorf("inventory has no %s hosts", GroupWeb)
	}
	for _, name := range sortedHostNames(web.Hosts) {
		if addr, _ := web.Hosts[name][VarAnsibleHost].(string); addr == "" {
			return fmt.Errorf("host %s is missing %s", name, VarAnsibleHost)
		}
	}
	return nil
}

func sortedHostNames(hosts map[string]Host) []string {
	names := lo.Keys(hosts)
	slices.Sort(names)
	return names
}
