package ftp

import "context"

// The blocking wrappers below queue an operation and wait for its terminal
// result. They must not be called from inside a callback of the same client.
// When ctx ends first the operation is cancelled and Cancelled returned.

// Download fetches remotePath into localFolder. progress, if non-nil,
// receives every intermediate update.
func (c *Client) Download(ctx context.Context, remotePath, localFolder string, burst bool, progress func(Progress), opts ...Option) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.DownloadAsync(remotePath, localFolder, burst, transferWaiter(done, progress), opts...)
	return c.wait(ctx, id, done)
}

// Upload pushes localPath into remoteFolder.
func (c *Client) Upload(ctx context.Context, localPath, remoteFolder string, progress func(Progress)) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.UploadAsync(localPath, remoteFolder, transferWaiter(done, progress))
	return c.wait(ctx, id, done)
}

// ListDirectory returns the sorted directory and file names at path.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]string, []string, ClientResult) {
	type listing struct {
		dirs, files []string
		result      ClientResult
	}
	done := make(chan listing, 1)
	id := c.ListDirectoryAsync(path, func(result ClientResult, dirs, files []string) {
		done <- listing{dirs, files, result}
	})

	select {
	case l := <-done:
		return l.dirs, l.files, l.result
	case <-ctx.Done():
		if c.Cancel(id) {
			return nil, nil, Cancelled
		}
		l := <-done
		return l.dirs, l.files, l.result
	}
}

// CreateDirectory creates a remote directory.
func (c *Client) CreateDirectory(ctx context.Context, path string) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.CreateDirectoryAsync(path, resultWaiter(done))
	return c.wait(ctx, id, done)
}

// RemoveDirectory removes an empty remote directory.
func (c *Client) RemoveDirectory(ctx context.Context, path string) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.RemoveDirectoryAsync(path, resultWaiter(done))
	return c.wait(ctx, id, done)
}

// RemoveFile removes a remote file.
func (c *Client) RemoveFile(ctx context.Context, path string) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.RemoveFileAsync(path, resultWaiter(done))
	return c.wait(ctx, id, done)
}

// Rename renames a remote file or directory.
func (c *Client) Rename(ctx context.Context, from, to string) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.RenameAsync(from, to, resultWaiter(done))
	return c.wait(ctx, id, done)
}

// Reset closes every session on the server.
func (c *Client) Reset(ctx context.Context) ClientResult {
	done := make(chan ClientResult, 1)
	id := c.ResetAsync(resultWaiter(done))
	return c.wait(ctx, id, done)
}

// AreFilesIdentical compares the CRC32 of a local and a remote file.
func (c *Client) AreFilesIdentical(ctx context.Context, localPath, remotePath string) (bool, ClientResult) {
	type comparison struct {
		identical bool
		result    ClientResult
	}
	done := make(chan comparison, 1)
	id := c.AreFilesIdenticalAsync(localPath, remotePath, func(result ClientResult, identical bool) {
		done <- comparison{identical, result}
	})

	select {
	case r := <-done:
		return r.identical, r.result
	case <-ctx.Done():
		if c.Cancel(id) {
			return false, Cancelled
		}
		r := <-done
		return r.identical, r.result
	}
}

func (c *Client) wait(ctx context.Context, id OperationID, done <-chan ClientResult) ClientResult {
	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		// Either Cancel reports Cancelled through the callback or the
		// operation finished first.
		c.Cancel(id)
		return <-done
	}
}

func transferWaiter(done chan<- ClientResult, progress func(Progress)) TransferCallback {
	return func(result ClientResult, p Progress) {
		if result == Next {
			if progress != nil {
				progress(p)
			}
			return
		}
		done <- result
	}
}

func resultWaiter(done chan<- ClientResult) ResultCallback {
	return func(result ClientResult) {
		done <- result
	}
}
