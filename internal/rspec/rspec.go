// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rspec is the XML document model for GENI/ORCA request and
// manifest documents: nodes, links, and the stitching extension
// (stitching/path/hop elements with suggestedVLANRange/
// vlanRangeAvailability) that the path-computation service reads and
// writes. The PCS and aggregate RPC clients themselves are out of scope
// (see internal/stitch/scs and internal/stitch/amclient); this package only
// models the wire document both sides exchange.
package rspec

import (
	"encoding/xml"
	"fmt"
)

// Document is a GENI request or manifest document.
type Document struct {
	XMLName   xml.Name   `xml:"rspec"`
	Type      string     `xml:"type,attr,omitempty"`
	Nodes     []Node     `xml:"node"`
	Links     []Link     `xml:"link"`
	Stitching *Stitching `xml:"stitching"`
}

// Node is a compute resource pinned to one aggregate.
type Node struct {
	ClientID          string `xml:"client_id,attr"`
	ComponentManagerID string `xml:"component_manager_id,attr"`
	Interfaces        []Interface `xml:"interface"`
}

// Interface is one of a node's network interfaces.
type Interface struct {
	ClientID string `xml:"client_id,attr"`
}

// Link connects two or more interfaces, possibly across aggregates.
type Link struct {
	ClientID     string         `xml:"client_id,attr"`
	Type         string         `xml:"type,attr,omitempty"`
	InterfaceRef []InterfaceRef `xml:"interface_ref"`
	Property     []Property     `xml:"property"`
	SharedVLAN   *SharedVLAN    `xml:"shared_vlan"`
}

// InterfaceRef points at a node's interface by client id.
type InterfaceRef struct {
	ClientID string `xml:"client_id,attr"`
}

// Property gives one directional capacity/latency/packet_loss figure for a
// link; a link with endpoints on two aggregates needs one in each
// direction.
type Property struct {
	SourceID    string `xml:"source_id,attr"`
	DestID      string `xml:"dest_id,attr"`
	Capacity    int64  `xml:"capacity,attr,omitempty"`
	Latency     int64  `xml:"latency,attr,omitempty"`
	PacketLoss  float64 `xml:"packet_loss,attr,omitempty"`
}

// SharedVLAN marks a link as using a pre-existing shared VLAN rather than
// requiring stitching negotiation, exempting it from the PCS-required test.
type SharedVLAN struct {
	Any bool `xml:"any,attr,omitempty"`
}

// Stitching is the GENI stitching extension: one Path per stitched link.
type Stitching struct {
	LastUpdateTime string `xml:"lastUpdateTime,attr,omitempty"`
	Paths          []Path `xml:"path"`
}

// Path is one stitched link's ordered chain of hops.
type Path struct {
	ID   string `xml:"id,attr"`
	Hops []Hop  `xml:"hop"`
}

// Hop is one aggregate-local segment of a stitched path.
type Hop struct {
	ID                    string `xml:"id,attr"`
	LinkID                string `xml:"link_id,attr"`
	ComponentID           string `xml:"component_id,attr,omitempty"`
	SuggestedVLANRange    string `xml:"suggestedVLANRange,omitempty"`
	VLANRangeAvailability string `xml:"vlanRangeAvailability,omitempty"`
	VLANTranslation       bool   `xml:"vlanTranslation,omitempty"`
	NextHop               string `xml:"nextHop,omitempty"`
}

// Marshal renders d as UTF-8 XML with an xml declaration, matching the
// combined-manifest output format in §6.
func Marshal(d *Document) ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rspec: marshal: %w", err)
	}
	out := append([]byte(xml.Header), body...)
	return out, nil
}

// Unmarshal parses an rspec document from data.
func Unmarshal(data []byte) (*Document, error) {
	var d Document
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("rspec: unmarshal: %w", err)
	}
	return &d, nil
}

// FindPath returns the Stitching path with the given link id, or nil.
func (d *Document) FindPath(linkID string) *Path {
	if d.Stitching == nil {
		return nil
	}
	for i := range d.Stitching.Paths {
		if d.Stitching.Paths[i].ID == linkID {
			return &d.Stitching.Paths[i]
		}
	}
	return nil
}

// FindHop returns the hop with the given id on p, or nil.
func (p *Path) FindHop(hopID string) *Hop {
	for i := range p.Hops {
		if p.Hops[i].ID == hopID {
			return &p.Hops[i]
		}
	}
	return nil
}

// ComponentManagerFor resolves an interface client id to its owning node's
// component_manager_id. Used by request pre-normalisation to decide
// whether a link spans more than one aggregate.
func (d *Document) ComponentManagerFor(interfaceClientID string) (string, bool) {
	for _, n := range d.Nodes {
		for _, iface := range n.Interfaces {
			if iface.ClientID == interfaceClientID {
				return n.ComponentManagerID, true
			}
		}
	}
	return "", false
}
