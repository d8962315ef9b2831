/*
Package vstore implements a versioned, schema-managed document store on top of
a transactional key-value engine (Bolt, or memory for tests).

We implement:

1. An Engine hosting named databases whose stores and indexes can only change
inside a version upgrade, like a browser's IndexedDB.

2. Record stores holding schemaless documents keyed by id, with create-or-merge
writes, batches, full scans and cursor-driven pages over an index.

3. Singleton objects: stores that hold exactly one record, used as a
key-value bucket (say, user settings).

4. Change listeners per store, fired once per mutating call.

# Technical Details

**Buckets.**
Each store is a root bucket `store:<name>` with a `data` sub-bucket and one
`index:<name>` sub-bucket per index. The database version and the store
descriptors live in the `__vstore_meta` bucket.

**Keys.**
Keys are encoded so that bytewise order matches key order: numbers sort
before dates, dates before strings, strings before arrays. An index entry key
is the encoded index key followed by the encoded primary key.

**Values.**
A value is a small header (format flags, writer version, xxhash64 of the
payload) followed by the msgpack-encoded record.

**Schema changes.**
A DB handle declares its stores up front. On open it creates the missing ones
in the background, one version bump per store: close the connection, reopen
at version+1, and let the upgrade callback create the store. The first store
access waits until the declared stores exist and no transaction is running;
later accesses skip the check.
*/
package vstore
