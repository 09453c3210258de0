package store

import (
	"fmt"

	pst "github.com/mooijtech/go-pst/v4/pkg"
)

// pidTagAttachMimeTag is the property id of the attachment mime type.
const pidTagAttachMimeTag = 14094

// File is a Store backed by a real .pst file. The descriptor tree is
// materialized into an in-memory Tree up front; go-pst keeps the file
// handle for nothing further, so it is closed together with the store.
type File struct {
	*Tree
	pstFile pst.File
}

// Open loads path with go-pst and materializes its folder tree.
//
// go-pst's public surface does not expose typed appointment or journal
// sub-records, so every message loaded through this adapter carries an
// email sub-record and classifies as a mail message. The in-memory Tree
// covers the remaining item shapes.
func Open(path string) (*File, error) {
	pstFile, err := pst.NewFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}

	valid, err := pstFile.IsValidSignature()
	if err != nil || !valid {
		return nil, fmt.Errorf("%w: invalid signature", ErrCannotOpen)
	}

	formatType, err := pstFile.GetFormatType()
	if err != nil {
		return nil, fmt.Errorf("%w: format type: %v", ErrCannotOpen, err)
	}

	encryptionType, err := pstFile.GetEncryptionType(formatType)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption type: %v", ErrCannotOpen, err)
	}

	if err := pstFile.InitializeBTrees(formatType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotLoadIndex, err)
	}

	f := &File{Tree: NewTree(path), pstFile: pstFile}

	rootNode := f.AddNode(nil, &Item{MessageStore: &MessageStore{}})

	rootFolder, err := pstFile.GetRootFolder(formatType, encryptionType)
	if err != nil {
		return nil, fmt.Errorf("%w: root folder: %v", ErrCannotLoadIndex, err)
	}

	top := f.AddNode(rootNode, &Item{
		DisplayName: rootFolder.DisplayName,
		Folder:      &Folder{},
	})
	f.SetTopOfFolders(top)

	if err := f.loadFolder(rootFolder, top, formatType, encryptionType); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *File) loadFolder(folder pst.Folder, node *Node, formatType, encryptionType string) error {
	messages, err := f.pstFile.GetMessages(folder, formatType, encryptionType)
	if err != nil {
		return fmt.Errorf("store: messages of %q: %w", folder.DisplayName, err)
	}
	if item := f.items[node.ID]; item != nil && item.Folder != nil {
		item.Folder.ItemCount = int32(len(messages))
	}

	for _, msg := range messages {
		item, err := f.loadMessage(msg, formatType, encryptionType)
		if err != nil {
			return err
		}
		f.AddNode(node, item)
	}

	if !folder.HasSubFolders {
		return nil
	}

	subFolders, err := f.pstFile.GetSubFolders(folder, formatType, encryptionType)
	if err != nil {
		return fmt.Errorf("store: subfolders of %q: %w", folder.DisplayName, err)
	}

	for _, sub := range subFolders {
		subNode := f.AddNode(node, &Item{
			DisplayName: sub.DisplayName,
			Folder:      &Folder{},
		})
		if err := f.loadFolder(sub, subNode, formatType, encryptionType); err != nil {
			return err
		}
	}

	return nil
}

func (f *File) loadMessage(msg pst.Message, formatType, encryptionType string) (*Item, error) {
	email := &Email{}
	item := &Item{Type: TypeNote, Email: email}

	if subject, err := msg.GetSubject(&f.pstFile, formatType, encryptionType); err == nil {
		item.Subject = subject
		item.DisplayName = subject
	}
	if body, err := msg.GetBody(&f.pstFile, formatType, encryptionType); err == nil {
		item.Body = body
	}
	if html, err := msg.GetBodyHTML(&f.pstFile, formatType, encryptionType); err == nil {
		email.HTMLBody = html
	}
	if header, err := msg.GetHeaders(&f.pstFile, formatType, encryptionType); err == nil {
		email.Header = header
	}
	if from, err := msg.GetFrom(&f.pstFile, formatType, encryptionType); err == nil {
		email.SenderAddress = from
	}
	if to, err := msg.GetTo(&f.pstFile, formatType, encryptionType); err == nil {
		email.SentTo = to
	}
	if cc, err := msg.GetCC(&f.pstFile, formatType, encryptionType); err == nil {
		email.CC = cc
	}
	if bcc, err := msg.GetBCC(&f.pstFile, formatType, encryptionType); err == nil {
		email.BCC = bcc
	}
	if id, err := msg.GetMessageID(&f.pstFile, formatType, encryptionType); err == nil {
		email.MessageID = id
	}
	if date, err := msg.GetReceivedDate(); err == nil {
		email.SentDate = &date
	}

	hasAttachments, err := msg.HasAttachments()
	if err != nil || !hasAttachments {
		return item, nil
	}

	attachments, err := msg.GetAttachments(&f.pstFile, formatType, encryptionType)
	if err != nil {
		// A broken attachment table loses the attachments, not the message.
		return item, nil
	}

	for i := range attachments {
		att := &Attachment{}
		if name, err := attachments[i].GetLongFilename(); err == nil {
			att.Filename = name
		}
		if name, err := attachments[i].GetFilename(); err == nil {
			att.ShortFilename = name
		}
		if mime, err := attachments[i].GetString(pidTagAttachMimeTag); err == nil {
			att.MimeType = mime
		}
		stream, err := attachments[i].GetInputStream(&f.pstFile, formatType, encryptionType)
		if err != nil {
			continue
		}
		data, err := stream.ReadCompletely()
		if err != nil {
			continue
		}
		att.Data = data
		item.Attachments = append(item.Attachments, att)
	}

	return item, nil
}

func (f *File) Close() error {
	treeErr := f.Tree.Close()
	if err := f.pstFile.Close(); err != nil {
		return fmt.Errorf("store: close pst: %w", err)
	}
	return treeErr
}
