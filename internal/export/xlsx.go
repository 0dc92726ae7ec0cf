// Package export renders a friends view and the pending request set as an
// xlsx workbook.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/connectcg/friendsync/internal/friends"
	"github.com/connectcg/friendsync/internal/models"
)

// Sheet names.
const (
	FriendsSheet = "Friends"
	PendingSheet = "Pending"
)

var (
	friendsHeader = []any{"ID", "Full name", "Username", "Relationship", "Request receiver", "Request ID", "Avatar"}
	pendingHeader = []any{"Request ID", "Sender ID", "Sender name", "Sender username"}
)

// WriteFriends writes state and pending to w as a two-sheet workbook.
func WriteFriends(w io.Writer, state friends.State, pending []models.FriendRequest) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), FriendsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(PendingSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	friendRows := make([][]any, 0, len(state.Items))
	for _, item := range state.Items {
		friendRows = append(friendRows, []any{
			item.ID,
			item.FullName,
			item.Username,
			string(item.RelationshipStatus),
			receiverLabel(item.IsRequestReceiver),
			item.RequestID,
			item.AvatarURL,
		})
	}
	if err := writeSheet(f, FriendsSheet, bold, friendsHeader, friendRows); err != nil {
		return err
	}

	pendingRows := make([][]any, 0, len(pending))
	for _, req := range pending {
		pendingRows = append(pendingRows, []any{req.RequestID, req.SenderID, req.SenderFullName, req.SenderUsername})
	}
	if err := writeSheet(f, PendingSheet, bold, pendingHeader, pendingRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 20)
}

func receiverLabel(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
