// Package frontend writes the deployment artifacts a web front-end reads:
// the component addresses per network and an interface descriptor for the
// registry and the marketplace. Nothing here is consulted at runtime.
package frontend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/rpc"
)

// Artifact file names.
const (
	AddressesFile = "contractAddresses.json"
	RegistryFile  = "FileNFT.json"
	MarketFile    = "FileNftMarketplace.json"
)

// Component names used as keys in AddressesFile.
const (
	RegistryName = "FileNFT"
	MarketName   = "FileNftMarketplace"
)

// Deployment identifies what is being exported.
type Deployment struct {
	Network         string
	RegistryAddress domain.Address
	MarketAddress   domain.Address
}

// Addresses is the AddressesFile layout: network -> component -> addresses.
type Addresses map[string]map[string][]domain.Address

// Entry is one interface element: a method or an event.
type Entry struct {
	Type            string  `json:"type"` // "function" or "event"
	Name            string  `json:"name"`
	Inputs          []Param `json:"inputs"`
	Outputs         []Param `json:"outputs,omitempty"`
	StateMutability string  `json:"stateMutability,omitempty"` // "view" or "nonpayable" or "payable"
}

// Param is a named, typed input or output.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Export writes all artifacts into dir, creating it if needed. The network's
// entry in an existing AddressesFile is replaced; other networks are kept.
func Export(dir string, d Deployment) error {
	if d.Network == "" {
		return errors.New("export: empty network")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create %s: %w", dir, err)
	}

	if err := UpdateAddresses(filepath.Join(dir, AddressesFile), d); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, RegistryFile), RegistryInterface()); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, MarketFile), MarketInterface())
}

// UpdateAddresses rewrites path with d's network entry replaced.
func UpdateAddresses(path string, d Deployment) error {
	addrs := Addresses{}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	case len(strings.TrimSpace(string(raw))) > 0:
		if err := json.Unmarshal(raw, &addrs); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	addrs[d.Network] = map[string][]domain.Address{
		MarketName:   {d.MarketAddress},
		RegistryName: {d.RegistryAddress},
	}
	return writeJSON(path, addrs)
}

// ReadAddresses loads an AddressesFile.
func ReadAddresses(path string) (Addresses, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var addrs Addresses
	if err := json.Unmarshal(raw, &addrs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return addrs, nil
}

// writeJSON writes v through a temp file and rename so readers never see a
// partial file.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// RegistryInterface describes the registry's methods and events.
func RegistryInterface() []Entry {
	return []Entry{
		function(rpc.MethodMint, rpc.MintParams{}, "nonpayable", Param{"recordId", "uint256"}),
		function(rpc.MethodReadContent, rpc.RecordParams{}, "view", Param{"contentPointer", "string"}, Param{"secret", "string"}),
		function(rpc.MethodBalanceOf, rpc.BalanceOfParams{}, "view", Param{"", "uint256"}),
		function(rpc.MethodBalanceOfBatch, rpc.BalanceOfBatchParams{}, "view", Param{"", "uint256[]"}),
		function(rpc.MethodSetApprovalForAll, rpc.SetApprovalForAllParams{}, "nonpayable"),
		function(rpc.MethodIsApprovedForAll, rpc.IsApprovedForAllParams{}, "view", Param{"", "bool"}),
		function(rpc.MethodSafeTransferFrom, rpc.SafeTransferFromParams{}, "nonpayable"),
		function(rpc.MethodDescriptor, nil, "view", Param{"", "tuple"}),
		function(rpc.MethodURI, rpc.RecordParams{}, "view", Param{"", "string"}),
		function(rpc.MethodGetRecord, rpc.RecordParams{}, "view", Param{"", "tuple"}),
		event(domain.RecordCreated(0)),
	}
}

// MarketInterface describes the marketplace's methods and events.
func MarketInterface() []Entry {
	listing := Param{"", "tuple"}
	return []Entry{
		function(rpc.MethodListItem, rpc.ListingParams{}, "nonpayable", listing),
		function(rpc.MethodCancelListing, rpc.RecordParams{}, "nonpayable"),
		function(rpc.MethodUpdateListing, rpc.ListingParams{}, "nonpayable", listing),
		function(rpc.MethodBuyItem, rpc.BuyItemParams{}, "payable", listing),
		function(rpc.MethodWithdrawProceeds, nil, "nonpayable", Param{"amount", "uint256"}),
		function(rpc.MethodGetListing, rpc.GetListingParams{}, "view", listing),
		function(rpc.MethodGetListings, rpc.SellerParams{}, "view", Param{"", "tuple[]"}),
		function(rpc.MethodGetProceeds, rpc.SellerParams{}, "view", Param{"", "uint256"}),
		function(rpc.MethodGetNftAddress, nil, "view", Param{"address", "address"}),
		event(domain.ItemListed("", 0, 0, 0)),
		event(domain.ItemCanceled("", 0)),
		event(domain.ItemBought("", "", 0, 0)),
		event(domain.ItemSoldOut("", 0)),
	}
}

func function(name string, params any, mutability string, outputs ...Param) Entry {
	return Entry{
		Type:            "function",
		Name:            name,
		Inputs:          paramsOf(params),
		Outputs:         outputs,
		StateMutability: mutability,
	}
}

// event describes e's kind using the fields its constructor sets.
func event(e domain.Event) Entry {
	inputs := []Param{{"recordId", "uint256"}}
	switch e.Kind {
	case domain.EventItemListed:
		inputs = []Param{{"seller", "address"}, {"recordId", "uint256"}, {"price", "uint256"}, {"amount", "uint256"}}
	case domain.EventItemCanceled, domain.EventItemSoldOut:
		inputs = []Param{{"seller", "address"}, {"recordId", "uint256"}}
	case domain.EventItemBought:
		inputs = []Param{{"buyer", "address"}, {"seller", "address"}, {"recordId", "uint256"}, {"price", "uint256"}}
	}
	return Entry{Type: "event", Name: string(e.Kind), Inputs: inputs}
}

var (
	addressType  = reflect.TypeOf(domain.Address(""))
	recordIDType = reflect.TypeOf(domain.RecordID(0))
)

// paramsOf lists the JSON fields of a params struct with their wire types.
func paramsOf(params any) []Param {
	out := []Param{}
	if params == nil {
		return out
	}
	t := reflect.TypeOf(params)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		out = append(out, Param{Name: name, Type: typeName(f.Type)})
	}
	return out
}

func typeName(t reflect.Type) string {
	switch {
	case t == addressType:
		return "address"
	case t == recordIDType:
		return "uint256"
	case t.Kind() == reflect.Slice:
		return typeName(t.Elem()) + "[]"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	case reflect.Uint64:
		return "uint256"
	}
	return t.Kind().String()
}
