package vstore

import "context"

// Object treats a store as a single-slot bucket holding one record.
type Object struct {
	core accessCore
	name string
}

func (o *Object) Name() string { return o.name }

// Get returns the object's record, or an empty Record if it was never set.
func (o *Object) Get(ctx context.Context) (Record, error) {
	rec, err := o.first(ctx)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// GetField returns a single field of the object, or nil.
func (o *Object) GetField(ctx context.Context, key string) (any, error) {
	rec, err := o.first(ctx)
	if err != nil {
		return nil, err
	}
	return rec[key], nil
}

// GetFields returns the named fields keyed by field name. Fields the object
// does not have are left out.
func (o *Object) GetFields(ctx context.Context, keys ...string) (Record, error) {
	rec, err := o.first(ctx)
	if err != nil {
		return Record{}, err
	}
	out := make(Record, len(keys))
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (o *Object) first(ctx context.Context) (Record, error) {
	var rec Record
	err := o.core.objectStore(ctx, o.name, ReadOnly, func(st *ObjectStore) error {
		var err error
		rec, err = st.First()
		return err
	})
	return rec, err
}

// Set shallow-merges data into the object, creating it on first use. The
// read and the write share one transaction, but two concurrent Set calls
// may still both read the old state.
func (o *Object) Set(ctx context.Context, data Record) error {
	err := o.core.objectStore(ctx, o.name, ReadWrite, func(st *ObjectStore) error {
		old, err := st.First()
		if err != nil {
			return err
		}
		if old != nil {
			return st.Put(old.Merge(data))
		}
		return st.Add(o.core.stampCreate(data))
	})
	if err != nil {
		return err
	}
	o.core.notify(o.name, ActionSet, data)
	return nil
}

func (o *Object) OnChange(fn Listener) *Subscription {
	return o.core.subscribe(o.name, fn)
}
