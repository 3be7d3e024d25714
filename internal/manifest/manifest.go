// Package manifest defines the rendered manifest set and its ordering
// contract. The order is part of the published artifact: the numeric file
// name prefix is the apply order consumers follow.
package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// Kind enumerates the manifest kinds the renderer can produce.
type Kind string

// Supported kinds.
const (
	KindSecret                Kind = "Secret"
	KindPersistentVolumeClaim Kind = "PersistentVolumeClaim"
	KindConfigMap             Kind = "ConfigMap"
	KindService               Kind = "Service"
	KindDeployment            Kind = "Deployment"
	KindIngress               Kind = "Ingress"
	KindNetworkPolicy         Kind = "NetworkPolicy"
	KindCronJob               Kind = "CronJob"
)

// kindRank orders manifests so referenced objects land before their
// consumers: the Secret first, then claims and config before workloads.
var kindRank = map[Kind]int{
	KindSecret:                0,
	KindPersistentVolumeClaim: 1,
	KindConfigMap:             2,
	KindService:               3,
	KindDeployment:            4,
	KindIngress:               5,
	KindNetworkPolicy:         6,
	KindCronJob:               7,
}

// ParseKind validates a render-plan kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindRank[k]; !ok {
		return "", fmt.Errorf("unsupported manifest kind %q", s)
	}
	return k, nil
}

// Manifest is a single rendered YAML document.
type Manifest struct {
	// Kind is the document kind.
	Kind Kind
	// Name is the object name (metadata.name).
	Name string
	// Service is the owning service; empty for shared manifests.
	Service string
	// Data is the rendered document, ready to write.
	Data []byte
}

// FileName returns the archive member name for the manifest at the given
// position. The numeric prefix encodes apply order.
func (m Manifest) FileName(index int) string {
	return fmt.Sprintf("%02d-%s-%s.yaml", index, strings.ToLower(string(m.Kind)), m.Name)
}

// Set is an ordered collection of rendered manifests.
type Set struct {
	Manifests []Manifest
}

// Len reports the number of manifests in the set.
func (s Set) Len() int {
	return len(s.Manifests)
}

// Empty reports whether the set holds no manifests.
func (s Set) Empty() bool {
	return len(s.Manifests) == 0
}

// Names returns the manifest file names in set order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.Manifests))
	for i, m := range s.Manifests {
		out = append(out, m.FileName(i))
	}
	return out
}

// Sort orders the set by the publishing contract: kind rank first, then the
// given service order (dependencies before dependents) within a kind, then
// insertion order. Manifests not bound to a service sort before bound ones
// of the same kind.
func (s *Set) Sort(serviceOrder []string) {
	rankOf := make(map[string]int, len(serviceOrder))
	for i, name := range serviceOrder {
		rankOf[name] = i
	}
	serviceRank := func(m Manifest) int {
		if m.Service == "" {
			return -1
		}
		if r, ok := rankOf[m.Service]; ok {
			return r
		}
		return len(serviceOrder)
	}

	ms := s.Manifests
	sort.SliceStable(ms, func(i, j int) bool {
		if kindRank[ms[i].Kind] != kindRank[ms[j].Kind] {
			return kindRank[ms[i].Kind] < kindRank[ms[j].Kind]
		}
		return serviceRank(ms[i]) < serviceRank(ms[j])
	})
}
