// Package engine wires the cache, remote stores, retry path, cascade rules
// and mutation coordinators of one signed-in session.
//
// Collections load lazily: the first read of a collection selects it from
// the remote store, concurrent first reads share one request, and later
// reads are served from the cache. Signing out discards every collection
// of the user, along with the folder undo journal.
//
// Typical use:
//
//	sess, _ := session.New(userID, session.WithAccessToken(token))
//	eng, err := engine.New(engine.Config{
//	    Session: sess,
//	    Remotes: engine.MemoryRemotes(),
//	    Sink:    notify.NewTerminal(os.Stderr),
//	})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if err := eng.Warm(ctx); err != nil {
//	    return err
//	}
//	note, err := eng.NoteMutations().Create(ctx, domain.NoteInput{Title: "Hello"})
package engine
