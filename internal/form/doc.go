// Package form tracks the state of an HTML-style form and submits it through a
// request client.
//
// Only fields declared at construction or through [Form.AddField] can be set.
// [Form.Submit] posts the flattened fields as multipart/form-data, resets the
// form on success and records the server's field errors on rejection:
//
//	f := form.New(map[string]formdata.Value{
//		"email": formdata.String("ada@example.com"),
//	}, form.DefaultConfig(), form.WithClient(client))
//	if _, err := f.Submit(ctx, "/register"); err != nil {
//		msg, _ := f.Errors().Get("email")
//	}
package form
