/*
group.go - Payment-type grouping and aggregation

PURPOSE:
  Partitions classified entries into sections by payment type, assigns
  serial numbers, and computes subtotals and the grand total.

INVARIANTS:
  - Serials are 1-based and contiguous within each section, reset per
    section (not global).
  - subtotal = sum of entry contributions; credit notes negative.
  - grand_total = sum of subtotals; total_entries = sum of entry counts.
  - Ordering is fully deterministic: entries by (date, invoice number,
    ref), sections by payment type name with the synthetic Unpaid bucket
    last. Repeated generation against unchanged data is byte-identical,
    which is what makes finalize-time snapshotting meaningful.
*/
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
)

// BuildSections buckets classified entries by payment type. Entries
// without a payment type (UNPAID, credit notes on unpaid invoices) land in
// the synthetic Unpaid section.
func BuildSections(entries []ReportEntry, types map[ledger.PaymentTypeID]ledger.PaymentType) []ReportSection {
	buckets := make(map[ledger.PaymentTypeID][]ReportEntry)
	var unpaid []ReportEntry

	for _, e := range entries {
		if e.PaymentTypeID == nil {
			unpaid = append(unpaid, e)
			continue
		}
		buckets[*e.PaymentTypeID] = append(buckets[*e.PaymentTypeID], e)
	}

	sections := make([]ReportSection, 0, len(buckets)+1)
	for typeID, bucket := range buckets {
		id := typeID
		name := string(typeID)
		if pt, ok := types[typeID]; ok {
			name = pt.Name
		}
		sections = append(sections, newSection(&id, name, bucket))
	}

	// Sections order by payment type name; ties broken by id so two types
	// with the same name still order deterministically.
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].PaymentTypeName != sections[j].PaymentTypeName {
			return sections[i].PaymentTypeName < sections[j].PaymentTypeName
		}
		return *sections[i].PaymentTypeID < *sections[j].PaymentTypeID
	})

	if len(unpaid) > 0 {
		sections = append(sections, newSection(nil, UnpaidSectionName, unpaid))
	}

	return sections
}

func newSection(typeID *ledger.PaymentTypeID, name string, entries []ReportEntry) ReportSection {
	sortEntries(entries)

	subtotal := decimal.Zero
	for i := range entries {
		entries[i].Serial = i + 1
		if typeID != nil {
			entries[i].PaymentTypeName = name
		}
		subtotal = subtotal.Add(entries[i].Contribution())
	}

	return ReportSection{
		PaymentTypeID:   typeID,
		PaymentTypeName: name,
		Entries:         entries,
		Subtotal:        subtotal,
		EntryCount:      len(entries),
	}
}

// sortEntries orders a section by date, then invoice number, then ref.
// The ref tie-break guarantees a total order even for same-day payments on
// the same invoice.
func sortEntries(entries []ReportEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		if entries[i].InvoiceNumber != entries[j].InvoiceNumber {
			return entries[i].InvoiceNumber < entries[j].InvoiceNumber
		}
		return entries[i].Ref < entries[j].Ref
	})
}

// SumSections computes the grand total and entry count across sections.
func SumSections(sections []ReportSection) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	for _, s := range sections {
		total = total.Add(s.Subtotal)
		count += s.EntryCount
	}
	return total, count
}
