package dbtest

import (
	"time"

	"github.com/google/uuid"
)

// Day returns midnight UTC on the given date.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

// StandardNow is the clock the standard data set is built around. Every
// grant in the set is active at this instant.
var StandardNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// StandardDataSet holds the ids created by SeedStandardDataSet.
//
// Provider users U1 and U2 own the mail. S supervises both, C collaborates
// on U1 for 2024 and A is an alias of U2 with historical access to
// March and April 2024. Thread T4 is U2's copy of the first message in T1,
// addressed to both mailboxes.
type StandardDataSet struct {
	U1, U2, S, C, A uuid.UUID

	ClientDomain, PartnerDomain, InternalDomain uuid.UUID
	Alice, Bob, Ivan                            uuid.UUID

	T1, T2, T3, T4 uuid.UUID
}

// SeedStandardDataSet inserts a small tenant corpus:
//
//	T1 (U1) "Quarterly invoice": 2024-01-10 from alice (invoice.pdf), 2024-02-15 to alice
//	T2 (U2) "Partnership":       2024-03-05 to bob, 2024-05-20 from bob (contract.docx)
//	T3 (U1) "Internal sync":     2024-04-01 to ivan (excluded domain)
//	T4 (U2) "Quarterly invoice": 2024-01-10 from alice (invoice.pdf, same message as T1)
func (tdb *TestDB) SeedStandardDataSet() StandardDataSet {
	tdb.T.Helper()
	var ds StandardDataSet

	ds.U1 = tdb.AddProviderUser(ProviderUserOpts{Email: "u1@acme.test", FirstName: "Uma", LastName: "One"})
	ds.U2 = tdb.AddProviderUser(ProviderUserOpts{Email: "u2@acme.test", FirstName: "Ugo", LastName: "Two"})
	ds.S = tdb.AddProviderUser(ProviderUserOpts{Email: "sup@acme.test", FirstName: "Sam"})
	ds.C = tdb.AddProviderUser(ProviderUserOpts{Email: "collab@acme.test", FirstName: "Cleo"})
	ds.A = tdb.AddProviderUser(ProviderUserOpts{Email: "alias@acme.test", FirstName: "Ari"})

	ds.ClientDomain = tdb.AddDomain("client.com")
	ds.PartnerDomain = tdb.AddDomain("partner.org")
	ds.InternalDomain = tdb.AddDomain("acme.test")
	tdb.ExcludeDomain("acme.test")

	ds.Alice = tdb.AddContact(ContactOpts{DomainID: ds.ClientDomain, Email: "alice@client.com", FirstName: StrPtr("Alice"), LastName: StrPtr("Archer")})
	ds.Bob = tdb.AddContact(ContactOpts{DomainID: ds.PartnerDomain, Email: "bob@partner.org", FirstName: StrPtr("Bob"), LastName: StrPtr("Baker")})
	ds.Ivan = tdb.AddContact(ContactOpts{DomainID: ds.InternalDomain, Email: "ivan@acme.test", FirstName: StrPtr("Ivan")})

	ds.T1 = tdb.AddThread(ds.U1, "Quarterly invoice")
	tdb.AddExchange(ExchangeOpts{ThreadID: ds.T1, ContactID: ds.Alice, SentAt: Day(2024, 1, 10).Add(9 * time.Hour), FromContact: true, OriginalMessageID: "orig-invoice", Attachments: []string{"invoice.pdf"}})
	tdb.AddExchange(ExchangeOpts{ThreadID: ds.T1, ContactID: ds.Alice, SentAt: Day(2024, 2, 15).Add(14 * time.Hour)})

	ds.T2 = tdb.AddThread(ds.U2, "Partnership")
	tdb.AddExchange(ExchangeOpts{ThreadID: ds.T2, ContactID: ds.Bob, SentAt: Day(2024, 3, 5).Add(10 * time.Hour)})
	tdb.AddExchange(ExchangeOpts{ThreadID: ds.T2, ContactID: ds.Bob, SentAt: Day(2024, 5, 20).Add(16 * time.Hour), FromContact: true, Attachments: []string{"contract.docx"}})

	ds.T3 = tdb.AddThread(ds.U1, "Internal sync")
	tdb.AddExchange(ExchangeOpts{ThreadID: ds.T3, ContactID: ds.Ivan, SentAt: Day(2024, 4, 1).Add(11 * time.Hour)})

	ds.T4 = tdb.AddThread(ds.U2, "Quarterly invoice")
	tdb.AddExchange(ExchangeOpts{ThreadID: ds.T4, ContactID: ds.Alice, SentAt: Day(2024, 1, 10).Add(9 * time.Hour), FromContact: true, OriginalMessageID: "orig-invoice", Attachments: []string{"invoice.pdf"}})

	tdb.AddSupervisor(ds.S, ds.U1)
	tdb.AddSupervisor(ds.S, ds.U2)
	tdb.AddCollaborator(CollaboratorOpts{
		OwnerID:        ds.U1,
		CollaboratorID: ds.C,
		Custom:         true,
		Start:          TimePtr(Day(2024, 1, 1)),
		End:            TimePtr(Day(2024, 12, 31)),
	})
	tdb.AddAlias(AliasOpts{
		OwnerID:         ds.U2,
		AliasID:         ds.A,
		Start:           TimePtr(Day(2024, 1, 1)),
		HistoricalStart: TimePtr(Day(2024, 3, 1)),
		HistoricalEnd:   TimePtr(Day(2024, 4, 30)),
	})

	return ds
}
